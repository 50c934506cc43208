// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newDialCommand() *cobra.Command {
	o := defaultOptions()
	var hold bool
	cmd := &cobra.Command{
		Use:   "dial address...",
		Short: "connects to peers and shakes hands with each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), &o, func(ctx context.Context, n *node) error {
				return dial(ctx, n, args, hold)
			})
		},
	}
	bind(cmd, &o)
	cmd.Flags().BoolVar(&hold, "hold", false, "keep accepted connections open until the peer closes them")
	return cmd
}

// dial handshakes with every address concurrently, at most MaxPending at a
// time. A failed handshake is logged and does not stop the others.
func dial(ctx context.Context, n *node, addrs []string, hold bool) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(int(n.opts.MaxPending))
	dialer := &net.Dialer{Timeout: n.opts.ReadTimeout}
	for _, addr := range addrs {
		eg.Go(func() error {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				n.log.Info("failed to dial",
					zap.String("addr", addr),
					zap.Error(err),
				)
				return nil
			}

			upgraded, res, err := n.shake(ctx, conn, true)
			logResult(n.log, conn.RemoteAddr(), res, err)
			if upgraded == nil {
				return nil
			}
			if !hold {
				return upgraded.Close()
			}
			n.serve(ctx, upgraded, res)
			return nil
		})
	}
	return eg.Wait()
}
