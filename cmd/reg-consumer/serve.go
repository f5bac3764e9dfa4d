package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reg-consumer/internal/config"
	"reg-consumer/internal/consumer"
	"reg-consumer/internal/logging"
	"reg-consumer/internal/supply"
	"reg-consumer/internal/web"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bind the supply and serve the state attribute",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config load failed: %w", err)
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runServe(ctx, cfg, cmd.ErrOrStderr())
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "./configs/dev.yaml", "Path to YAML config")
}

type liveRuntime struct {
	log     *zap.Logger
	reg     *supply.Registry
	svc     *consumer.Service
	handler http.Handler
}

func newLiveRuntime(cfg config.Config, out io.Writer) (*liveRuntime, error) {
	logs := logging.NewBuffer(cfg.Log.BufferLines)
	log, err := logging.New(cfg.Log, out, logs)
	if err != nil {
		return nil, err
	}

	reg := supply.NewRegistry(cfg.Supplies, log)
	svc := consumer.New(consumer.Config{
		Supply:        cfg.Consumer.Supply,
		RetryInterval: cfg.Consumer.RetryInterval,
	}, reg, log)

	return &liveRuntime{log: log, reg: reg, svc: svc, handler: web.Handler(svc, logs)}, nil
}

func runServe(ctx context.Context, cfg config.Config, out io.Writer) error {
	rt, err := newLiveRuntime(cfg, out)
	if err != nil {
		return err
	}
	defer func() { _ = rt.log.Sync() }()

	rt.log.Info("reg-consumer starting",
		zap.String("supply", cfg.Consumer.Supply),
		zap.String("listen", cfg.Web.Listen),
		zap.Int("declared_supplies", len(cfg.Supplies)))

	g, gctx := errgroup.WithContext(ctx)
	if err := rt.svc.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		if err := web.Serve(gctx, cfg.Web.Listen, rt.handler); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Forces the supply off if it was left enabled.
		rt.svc.Close()
		return nil
	})

	err = g.Wait()
	rt.log.Info("reg-consumer stopped")
	return err
}
