// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// gnutella-shake dials or accepts Gnutella 0.6 connections and runs the
// handshake over them with either the blocking or the non-blocking engine.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "gnutella-shake",
		Short:         "runs Gnutella 0.6 handshakes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDialCommand(), newListenCommand())
	return root
}

// run builds the node described by o and calls f with it. The reactor loop
// and the metrics endpoint run alongside f until it returns.
func run(ctx context.Context, o *options, f func(ctx context.Context, n *node) error) error {
	logger, err := newLogger(o.Log)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// The engine stays quiet; logResult reports every outcome.
	n, err := newNode(logger, log.NewNoOpLogger(), o)
	if err != nil {
		return err
	}
	logger.Info("starting",
		zap.String("mode", o.Mode),
		zap.Stringer("role", n.role),
		zap.String("userAgent", n.settings.UserAgent),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	background, bctx := errgroup.WithContext(ctx)
	if n.loop != nil {
		background.Go(func() error {
			_ = n.loop.Run(bctx)
			return nil
		})
	}
	if o.Metrics != "" {
		background.Go(func() error {
			return n.serveMetrics(bctx, o.Metrics)
		})
	}

	err = f(ctx, n)
	cancel()
	if werr := background.Wait(); err == nil {
		err = werr
	}
	return err
}
