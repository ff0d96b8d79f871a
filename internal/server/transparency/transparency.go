// Package transparency publishes the list of public signing keys so that
// anyone can check stamp signatures without trusting the server's API.
package transparency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
)

// Document is the published key listing.
type Document struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Keys        []models.PublicKeyInfo `json:"keys"`
}

// KeyLister is satisfied by services.KeyService.
type KeyLister interface {
	PublicKeys(ctx context.Context) ([]models.PublicKeyInfo, error)
}

// Publisher stores a rendered Document somewhere public.
type Publisher interface {
	Publish(ctx context.Context, doc []byte) error
	// Location describes where the document ends up, for logs.
	Location() string
}

// Build collects the current key listing.
func Build(ctx context.Context, keys KeyLister, now time.Time) (*Document, error) {
	infos, err := keys.PublicKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return &Document{GeneratedAt: now.UTC(), Keys: infos}, nil
}

// Render encodes doc as indented JSON.
func Render(doc *Document) ([]byte, error) {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Publish builds the listing once and hands it to every publisher. All
// publishers are attempted; their errors are joined.
func Publish(ctx context.Context, keys KeyLister, now time.Time, pubs ...Publisher) (*Document, error) {
	doc, err := Build(ctx, keys, now)
	if err != nil {
		return nil, err
	}
	b, err := Render(doc)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	var errs []error
	for _, p := range pubs {
		if err := p.Publish(ctx, b); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Location(), err))
		}
	}
	return doc, errors.Join(errs...)
}
