// SPDX-License-Identifier: MIT

// Package cmd implements the rtbuffer command line.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rtbuffer/internal/audio"
	"rtbuffer/internal/config"
	"rtbuffer/internal/log"
	"rtbuffer/internal/metrics"
	"rtbuffer/internal/transport"
	"rtbuffer/pkg/build"
)

var logger = log.For("cmd")

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string) error {
	root := newRootCommand(newRootOptions())
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(o *rootOptions) *cobra.Command {
	info := build.GetBuildFlags()

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(cmd, o)
		},
	}
	rootCmd.SetVersionTemplate(info.String() + "\n")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	o.bindPersistent(rootCmd)
	o.bindLocal(rootCmd)

	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newSimulateCommand(o))
	return rootCmd
}

// runEngine runs the hardware engine until SIGINT or SIGTERM. SIGHUP
// reloads the configuration file.
func runEngine(cmd *cobra.Command, o *rootOptions) error {
	cfg, err := o.load(cmd)
	if err != nil {
		return err
	}

	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		if err := audio.Terminate(); err != nil {
			logger.Warnf("%v", err)
		}
	}()

	var opts []audio.Option
	var ws *transport.WebSocketTransport
	if cfg.Transport.WebSocketEnabled {
		ws = transport.NewWebSocketTransport()
		defer ws.Close()
		opts = append(opts, audio.WithTransport(ws))
	}

	engine, err := audio.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv, err := newServer(cfg, engine, ws)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return engine.Run(ctx) })
	if srv != nil {
		g.Go(func() error { return srv.Run(ctx) })
	}
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-hup:
				reload(cmd, o, engine)
			}
		}
	})

	logger.Infof("session %s running, %s", engine.Session(), build.GetBuildFlags())
	return g.Wait()
}

// newServer returns nil when neither endpoint is enabled.
func newServer(cfg *config.Config, engine *audio.Engine, ws *transport.WebSocketTransport) (*transport.Server, error) {
	if ws == nil && !cfg.Transport.MetricsEnabled {
		return nil, nil
	}
	srv := transport.NewServer(cfg.Transport.ListenAddress)
	if ws != nil {
		srv.Handle("/ws", ws)
	}
	if cfg.Transport.MetricsEnabled {
		m, err := metrics.New(engine, engine.Session())
		if err != nil {
			return nil, err
		}
		srv.Handle("/metrics", m.Handler())
	}
	return srv, nil
}

// reload rereads the configuration file, applies the command line on top
// and hands the result to the engine. Failures keep the running setup.
func reload(cmd *cobra.Command, o *rootOptions, engine *audio.Engine) {
	cfg, err := o.load(cmd)
	if err != nil {
		logger.Errorf("reload: %v", err)
		return
	}
	switch err := engine.Reload(cfg); {
	case errors.Is(err, audio.ErrRestartNeeded):
		logger.Warnf("reload: %v", err)
	case err != nil:
		logger.Errorf("reload: %v", err)
	default:
		logger.Infof("configuration reloaded")
	}
}
