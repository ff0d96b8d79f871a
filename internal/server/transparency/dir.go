package transparency

import (
	"context"
	"path/filepath"

	"github.com/dmitrijs2005/humanstamp/internal/filex"
)

// DirPublisher writes the listing into a local directory, e.g. one served
// as static files.
type DirPublisher struct {
	dir  string
	name string
}

// NewDirPublisher writes to dir under the base name of objectKey.
func NewDirPublisher(dir, objectKey string) *DirPublisher {
	return &DirPublisher{dir: dir, name: filepath.Base(objectKey)}
}

func (p *DirPublisher) Publish(ctx context.Context, doc []byte) error {
	dir, err := filex.EnsureDir(p.dir)
	if err != nil {
		return err
	}
	return filex.WriteFileAtomic(filepath.Join(dir, p.name), doc, 0o644)
}

func (p *DirPublisher) Location() string {
	return filepath.Join(p.dir, p.name)
}
