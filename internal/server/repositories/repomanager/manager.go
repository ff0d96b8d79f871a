package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/humanstamp/internal/dbx"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/senders"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/signingkeys"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/stamps"
	"github.com/dmitrijs2005/humanstamp/internal/server/repositories/validations"
)

// RepositoryManager vends repositories bound to a *sql.DB or a transaction,
// so services can run several of them inside one dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	SigningKeys(db dbx.DBTX) signingkeys.Repository
	Senders(db dbx.DBTX) senders.Repository
	Stamps(db dbx.DBTX) stamps.Repository
	Validations(db dbx.DBTX) validations.Repository
}
