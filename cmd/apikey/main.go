// Command apikey manages the API keys that authenticate users against the
// tenant service.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/tenantsvc/internal/api/middleware"
	"github.com/kiranshivaraju/tenantsvc/internal/config"
	"github.com/kiranshivaraju/tenantsvc/internal/store"
	"github.com/kiranshivaraju/tenantsvc/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const keyPrefix = "tsk_"

type keyStore interface {
	GetUserByName(ctx context.Context, name string) (*models.User, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID int64) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// opener connects to the store named by databaseURL. The returned func
// releases it.
type opener func(ctx context.Context, databaseURL string) (keyStore, func(), error)

func main() {
	if err := newRootCmd(openPostgres).Execute(); err != nil {
		os.Exit(1)
	}
}

func openPostgres(ctx context.Context, databaseURL string) (keyStore, func(), error) {
	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             databaseURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func newRootCmd(open opener) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:          "apikey",
		Short:        "Manage tenant service API keys",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL.")

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, ks keyStore) error) error {
		if databaseURL == "" {
			return errors.New("--database-url or DATABASE_URL is required")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ks, closeFn, err := open(ctx, databaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer closeFn()
		return fn(ctx, ks)
	}

	cmd.AddCommand(newCreateCmd(withStore), newListCmd(withStore), newRevokeCmd(withStore))
	return cmd
}

type storeRunner func(cmd *cobra.Command, fn func(ctx context.Context, ks keyStore) error) error

func newCreateCmd(run storeRunner) *cobra.Command {
	var userName, name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a key for a user and print it once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, ks keyStore) error {
				user, err := ks.GetUserByName(ctx, userName)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %q not found", userName)
				}
				if err != nil {
					return err
				}

				raw, key, err := newAPIKey(user.ID, name, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := ks.CreateAPIKey(ctx, key); err != nil {
					return fmt.Errorf("create api key: %w", err)
				}

				fmt.Fprintf(cmd.OutOrStdout(), "id:  %s\nkey: %s\n", key.ID, raw)
				cmd.PrintErrln("Store the key now; it cannot be shown again.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userName, "user", "", "User the key authenticates as.")
	cmd.Flags().StringVar(&name, "name", "default", "Label for the key.")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newListCmd(run storeRunner) *cobra.Command {
	var userName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active keys of a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, ks keyStore) error {
				user, err := ks.GetUserByName(ctx, userName)
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %q not found", userName)
				}
				if err != nil {
					return err
				}
				keys, err := ks.ListAPIKeys(ctx, user.ID)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tPREFIX\tCREATED\tLAST USED")
				for _, k := range keys {
					lastUsed := "-"
					if k.LastUsedAt != nil {
						lastUsed = k.LastUsedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
						k.ID, k.Name, k.KeyPrefix, k.CreatedAt.Format(time.RFC3339), lastUsed)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&userName, "user", "", "User whose keys to list.")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newRevokeCmd(run storeRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}
			return run(cmd, func(ctx context.Context, ks keyStore) error {
				if err := ks.RevokeAPIKey(ctx, id); errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("key %s not found or already revoked", id)
				} else if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", id)
				return nil
			})
		},
	}
}

// newAPIKey returns a fresh raw key and its stored form. Only the bcrypt hash
// and the leading middleware.KeyPrefixLen characters are kept.
func newAPIKey(userID int64, name string, now time.Time) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := keyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	return raw, &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:middleware.KeyPrefixLen],
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
