package apikey

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pannier-io/pannier/internal/config"
	"github.com/pannier-io/pannier/internal/store"
)

// NewAPIKeyCommand creates the apikey subcommand
func NewAPIKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	cmd.AddCommand(newCreateCommand())
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newDisableCommand())

	return cmd
}

func newCreateCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				key, err := st.CreateAPIKey(ctx, name)
				if err != nil {
					return err
				}
				fmt.Println(key)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Name of the key's consumer")

	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				keys, err := st.APIKeys(ctx)
				if err != nil {
					return err
				}
				for _, k := range keys {
					state := "enabled"
					if !k.Enabled {
						state = "disabled"
					}
					fmt.Printf("%s\t%s\t%s\t%s\n", k.Key, k.Name, state, k.CreatedAt)
				}
				return nil
			})
		},
	}
}

func newDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable <key>",
		Short: "Disable an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				return st.DisableAPIKey(ctx, args[0])
			})
		},
	}
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()
	return fn(ctx, st)
}
