package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/replyd/autoreply"
	"github.com/hazyhaar/replyd/xfeed"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Log in, then scan and reply until interrupted",
	Long: `Open the browser session, wait for login, then run scan cycles until
SIGINT or SIGTERM. A pending challenge pauses the bot until it is solved in
the browser window.

Examples:
  replyd run -c replyd.yaml
  replyd run --dry-run --log-level debug`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
			cfg.Reply.DryRun = true
		}
		if addr, _ := cmd.Flags().GetString("status-addr"); addr != "" {
			cfg.Status.Addr = addr
		}
		logger := newLogger(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("replyd: fatal", "error", err)
			return err
		}
		logger.Info("replyd: stopped")
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "fill the composer but never submit")
	runCmd.Flags().String("status-addr", "", "override status.addr, e.g. 127.0.0.1:8787")
}

// serve runs the bot and, when status.addr is set, the status API until
// ctx is done or the bot fails.
func serve(ctx context.Context, cfg *autoreply.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var feed *xfeed.Source
	defer func() {
		if feed != nil {
			feed.Close()
		}
	}()
	bot, err := autoreply.NewFromConfig(ctx, cfg, func(ctx context.Context) (autoreply.FeedSource, error) {
		f, err := xfeed.Open(ctx, xfeed.FromConfig(cfg, logger))
		if err != nil {
			return nil, err
		}
		feed = f
		return f, nil
	}, reg, logger)
	if err != nil {
		return err
	}
	defer bot.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := bot.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Status.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           bot.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return gctx },
		}
		g.Go(func() error {
			logger.Info("replyd: status api listening", "addr", cfg.Status.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	return g.Wait()
}
