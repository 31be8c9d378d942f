package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pannier-io/pannier/internal/api"
	"github.com/pannier-io/pannier/internal/config"
	"github.com/pannier-io/pannier/internal/contacts"
	"github.com/pannier-io/pannier/internal/mailer"
	"github.com/pannier-io/pannier/internal/news"
	"github.com/pannier-io/pannier/internal/queue"
	"github.com/pannier-io/pannier/internal/store"
	"github.com/pannier-io/pannier/pkg/ctms"
)

// NewServeCommand creates the serve subcommand
func NewServeCommand() *cobra.Command {
	var addr string
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the subscription API server",
		Long:  "Start the HTTP JSON API that accepts subscription changes and queues them for delivery to CTMS.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addr, withWorker)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides ADDR)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Run the queue worker in the same process")

	return cmd
}

func run(addr string, withWorker bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
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

	catalog := news.NewCatalog(st)
	q := queue.New(st, logger)
	svc := contacts.New(client, catalog, q, logger)
	server := api.New(st, catalog, svc, q, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if withWorker {
		w := queue.NewWorker(st, svc, mailer.New(cfg, logger), logger,
			cfg.QueuePollInterval, cfg.QueueMaxAttempts)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	return g.Wait()
}
