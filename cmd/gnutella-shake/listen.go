// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

func newListenCommand() *cobra.Command {
	o := defaultOptions()
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "accepts connections and shakes hands with each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), &o, func(ctx context.Context, n *node) error {
				var lc net.ListenConfig
				l, err := lc.Listen(ctx, "tcp", o.Listen)
				if err != nil {
					return err
				}
				n.log.Info("listening", zap.Stringer("addr", l.Addr()))
				return listen(ctx, n, l)
			})
		},
	}
	bind(cmd, &o)
	return cmd
}

// listen accepts connections until ctx is cancelled. New handshakes are
// started at most AcceptRate per second and at most MaxPending run at once.
func listen(ctx context.Context, n *node, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	limiter := rate.NewLimiter(rate.Limit(n.opts.AcceptRate), n.opts.AcceptBurst)
	pending := semaphore.NewWeighted(n.opts.MaxPending)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		if err := pending.Acquire(ctx, 1); err != nil {
			return nil
		}
		conn, err := l.Accept()
		if err != nil {
			pending.Release(1)
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		go func() {
			upgraded, res, err := n.shake(ctx, conn, false)
			pending.Release(1)
			logResult(n.log, conn.RemoteAddr(), res, err)
			if upgraded != nil {
				n.serve(ctx, upgraded, res)
			}
		}()
	}
}
