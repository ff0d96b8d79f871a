package transparency

import (
	"context"

	sc "github.com/dmitrijs2005/humanstamp/internal/server/config"
)

// FromConfig returns every publisher cfg enables. An empty result means
// publishing is not configured.
func FromConfig(ctx context.Context, cfg *sc.Config) ([]Publisher, error) {
	var pubs []Publisher
	if cfg.S3Enabled() {
		p, err := NewS3Publisher(ctx, cfg)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, p)
	}
	if cfg.TransparencyDir != "" {
		pubs = append(pubs, NewDirPublisher(cfg.TransparencyDir, cfg.TransparencyObjectKey))
	}
	return pubs, nil
}
