package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/humanstamp/internal/admin"
)

func main() {
	os.Exit(admin.Execute(context.Background(), os.Args[1:]))
}
