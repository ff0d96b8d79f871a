package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/stamp"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSendersCmd(with withFunc) *cobra.Command {
	senders := &cobra.Command{Use: "senders", Short: "Manage sender identities"}

	var userID, email string
	var verified bool
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a sender email for a user",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, s *session, _ []string) error {
			addr := stamp.NormalizeEmail(email)
			if userID == "" || addr == "" {
				return errors.New("--user and --email are required")
			}
			if _, err := stamp.RecipientDigest(addr); err != nil {
				return fmt.Errorf("invalid email %q", addr)
			}

			sender, err := s.repos.Senders(s.db).Create(ctx, &models.Sender{
				ID:            uuid.NewString(),
				UserID:        userID,
				Email:         addr,
				EmailVerified: verified,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(s.out, sender.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&userID, "user", "", "owning user id")
	add.Flags().StringVar(&email, "email", "", "sender email address")
	add.Flags().BoolVar(&verified, "verified", false, "mark the email as already verified")

	senders.AddCommand(add)
	return senders
}
