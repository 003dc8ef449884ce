package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"festival-mileage/internal/app"
	"festival-mileage/internal/config"
	"festival-mileage/internal/jobs"
	transport "festival-mileage/internal/transport/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the festival server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := loadRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.log.Logger
	cfg := rt.cfg

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	verifier, err := rt.verifier(ctx)
	if err != nil {
		return err
	}
	handler := transport.NewRouter(rt.services, verifier, transport.Options{
		Poll:     config.TTLDuration(cfg.Vote.Poll, 200*time.Millisecond),
		Debounce: config.TTLDuration(cfg.Vote.Debounce, app.DefaultBallotDebounce),
	}, logger)

	jobCtx, stopJobs := context.WithCancel(ctx)
	runner := jobs.New(jobCtx, logger)
	runner.Every(config.TTLDuration(cfg.Jobs.SnapshotEvery, 0), "class_snapshot", jobs.ClassSnapshotJob(rt.services.Classes))
	runner.Every(time.Minute, "overdue_round", jobs.OverdueRoundJob(rt.services.Votes,
		config.TTLDuration(cfg.Jobs.OverdueAfter, 5*time.Minute), logger, time.Now))
	defer func() {
		stopJobs()
		runner.Wait()
	}()

	// WriteTimeout stays unset: websocket connections outlive any request deadline.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting festival server", zap.String("port", finalPort), zap.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
