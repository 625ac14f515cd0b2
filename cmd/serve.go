package main

import (
	"context"

	"github.com/desertthunder/podsession/internal/server"
	"github.com/desertthunder/podsession/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve exposes the session on the local HTTP gateway until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	sess, err := r.connect(ctx)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	logger := shared.WithLogger(r.logger, "component", "gateway")
	gateway := server.NewGateway(sess, r.events, r.config.Server, logger)
	logger.Debug("routes registered", "routes", gateway.Routes())

	return server.ListenAndServe(ctx, addr, gateway, logger)
}
