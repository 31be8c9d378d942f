package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pannier-io/pannier/internal/config"
	"github.com/pannier-io/pannier/internal/store"
)

// catalogFile is the on-disk shape of a newsletter catalog.
type catalogFile struct {
	Newsletters []struct {
		Slug                string   `yaml:"slug"`
		Title               string   `yaml:"title"`
		Description         string   `yaml:"description"`
		VendorID            string   `yaml:"vendor_id"`
		WelcomeID           string   `yaml:"welcome_id"`
		ConfirmID           string   `yaml:"confirm_id"`
		Languages           []string `yaml:"languages"`
		Active              bool     `yaml:"active"`
		Private             bool     `yaml:"private"`
		Show                bool     `yaml:"show"`
		RequiresDoubleOptIn bool     `yaml:"requires_double_optin"`
		Order               int      `yaml:"order"`
	} `yaml:"newsletters"`
	Groups []struct {
		Slug        string   `yaml:"slug"`
		Title       string   `yaml:"title"`
		Active      bool     `yaml:"active"`
		Newsletters []string `yaml:"newsletters"`
	} `yaml:"groups"`
	BlockedDomains []string `yaml:"blocked_domains"`
}

// NewSyncCommand creates the sync subcommand
func NewSyncCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load the newsletter catalog from a YAML file",
		Long:  "Load newsletters, groups and blocked domains from a YAML file into the local database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), file)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "newsletters.yaml", "Catalog file to load")

	return cmd
}

func run(ctx context.Context, file string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	var catalog catalogFile
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("failed to parse catalog file: %w", err)
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	for _, n := range catalog.Newsletters {
		if n.Slug == "" || n.VendorID == "" {
			return fmt.Errorf("newsletter %q needs both slug and vendor_id", n.Slug)
		}
		err := st.UpsertNewsletter(ctx, store.Newsletter{
			Slug:                n.Slug,
			Title:               n.Title,
			Description:         n.Description,
			VendorID:            n.VendorID,
			WelcomeID:           n.WelcomeID,
			ConfirmID:           n.ConfirmID,
			Languages:           n.Languages,
			Active:              n.Active,
			Private:             n.Private,
			Show:                n.Show,
			RequiresDoubleOptIn: n.RequiresDoubleOptIn,
			Order:               n.Order,
		})
		if err != nil {
			return fmt.Errorf("failed to store newsletter %q: %w", n.Slug, err)
		}
	}

	for _, g := range catalog.Groups {
		err := st.UpsertGroup(ctx, store.NewsletterGroup{
			Slug:        g.Slug,
			Title:       g.Title,
			Active:      g.Active,
			Newsletters: g.Newsletters,
		})
		if err != nil {
			return fmt.Errorf("failed to store group %q: %w", g.Slug, err)
		}
	}

	for _, domain := range catalog.BlockedDomains {
		if err := st.AddBlockedDomain(ctx, domain); err != nil {
			return fmt.Errorf("failed to store blocked domain %q: %w", domain, err)
		}
	}

	fmt.Printf("loaded %d newsletters, %d groups, %d blocked domains\n",
		len(catalog.Newsletters), len(catalog.Groups), len(catalog.BlockedDomains))
	return nil
}
