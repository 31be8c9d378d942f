package worker

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pannier-io/pannier/internal/config"
	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/mailer"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/queue"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// NewWorkerCommand creates the worker subcommand
func NewWorkerCommand() *cobra.Command {
	var retryFailed bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the queue worker",
		Long:  "Start the worker that drains the job queue and applies subscription changes to CTMS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(retryFailed)
		},
	}

	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Requeue failed jobs before starting")

	return cmd
}

func run(retryFailed bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.CTMSURL == "" {
		return fmt.Errorf("CTMS_URL is required")
	}

	logger, err := config.NewLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = st.Close() }()

	client, err := ctms.NewSDK(cfg.CTMSURL, cfg.CTMSClientID, cfg.CTMSClientSecret)
	if err != nil {
		return fmt.Errorf("failed to create ctms client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if retryFailed {
		n, err := st.RetryFailedJobs(ctx)
		if err != nil {
			return fmt.Errorf("failed to requeue failed jobs: %w", err)
		}
		logger.Info("requeued failed jobs", zap.Int64("count", n))
	}

	catalog := news.NewCatalog(st)
	q := queue.New(st, logger)
	svc := contacts.New(client, catalog, q, logger)
	w := queue.NewWorker(st, svc, mailer.New(cfg, logger), logger,
		cfg.QueuePollInterval, cfg.QueueMaxAttempts)

	logger.Info("worker started")
	return w.Run(ctx)
}
