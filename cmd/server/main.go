package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/config"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/logging"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/provision"
	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib/supervisor"
)

const shutdownTimeout = 5 * time.Second

func main() {
	var configPath string
	root := &cobra.Command{
		Use:           "ocr-supervisord",
		Short:         "OCR backend supervisor daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sup := supervisor.New(cfg, supervisor.WithLogger(logger.Named("supervisor")))
	prov := provision.New(cfg, provision.WithLogger(logger.Named("provision")))

	kinds := cfg.Kinds()
	defaultKind := lib.BackendPaddleOCR
	if _, err := cfg.Backend(defaultKind); err != nil {
		defaultKind = kinds[0]
	}

	service := NewSupervisorServiceServer(sup, prov, defaultKind, logger.Named("grpc"))
	srv, err := NewGRPCServer(cfg.Server.Address, service, logger)
	if err != nil {
		sup.Close()
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Server listening", zap.Stringer("address", srv.Addr()), zap.Bool("tls", srv.tls))
		if err := srv.Serve(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		watchHealth(gctx, sup, srv.Health(), kinds, logger)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		// stopping the backend first ends output streams and in-flight starts
		sup.Close()
		srv.Stop(shutdownTimeout)
		return nil
	})

	return g.Wait()
}
