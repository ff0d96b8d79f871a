package admin

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/humanstamp/internal/server/transparency"
	"github.com/dmitrijs2005/humanstamp/internal/timex"
	"github.com/spf13/cobra"
)

type withFunc func(runner) func(*cobra.Command, []string) error

func newKeysCmd(with withFunc) *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage signing keys"}

	var publish bool
	rotate := &cobra.Command{
		Use:   "rotate",
		Short: "Create a new active signing key and retire the current one",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, s *session, _ []string) error {
			ks, err := s.keyService()
			if err != nil {
				return err
			}
			key, err := ks.Rotate(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(s.out, "active key: %s\n", key.ID)
			if publish {
				return publishKeys(ctx, s, 0)
			}
			return nil
		}),
	}
	rotate.Flags().BoolVar(&publish, "publish", false, "publish the key listing after rotating")

	list := &cobra.Command{
		Use:   "list",
		Short: "List all signing keys, oldest first",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, s *session, _ []string) error {
			ks, err := s.keyService()
			if err != nil {
				return err
			}
			infos, err := ks.PublicKeys(ctx)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY ID\tACTIVE\tCREATED\tROTATED\tPUBLIC KEY")
			for _, k := range infos {
				rotated := "-"
				if k.RotatedAt != nil {
					rotated = k.RotatedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", k.KeyID, k.IsActive, k.CreatedAt.UTC().Format(time.RFC3339), rotated, k.PublicKey)
			}
			return tw.Flush()
		}),
	}

	var presign time.Duration
	pub := &cobra.Command{
		Use:   "publish",
		Short: "Publish the public key listing to the configured targets",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, s *session, _ []string) error {
			return publishKeys(ctx, s, presign)
		}),
	}
	pub.Flags().DurationVar(&presign, "presign", 0, "also print a presigned S3 link valid for this long")

	keys.AddCommand(rotate, list, pub)
	return keys
}

func publishKeys(ctx context.Context, s *session, presign time.Duration) error {
	pubs, err := s.deps.Publishers(ctx, s.cfg)
	if err != nil {
		return err
	}
	if len(pubs) == 0 {
		return errors.New("no publishing target configured (set S3_BUCKET or TRANSPARENCY_DIR)")
	}

	ks, err := s.keyService()
	if err != nil {
		return err
	}
	doc, err := transparency.Publish(ctx, ks, timex.UTC(), pubs...)
	if err != nil {
		return err
	}

	for _, p := range pubs {
		fmt.Fprintf(s.out, "published %d keys to %s\n", len(doc.Keys), p.Location())
		if s3p, ok := p.(*transparency.S3Publisher); ok && presign > 0 {
			u, err := s3p.PresignedURL(ctx, presign)
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, u)
		}
	}
	return nil
}
