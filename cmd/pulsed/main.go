package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nimburion/pulse/pkg/cli"
	"github.com/nimburion/pulse/pkg/config"
	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/server"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	cmd := cli.NewServiceCommand(cli.ServiceCommandOptions{
		Name:        "pulsed",
		Description: "Periodic event stream service",
		EnvPrefix:   "PULSE",
		RunServer:   runServer,
	})
	cli.Execute(cmd)
}

func runServer(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	defer closeLogger(log)

	opts := &server.RunServersOptions{
		Config: cfg,
		Logger: log,
	}
	servers, err := server.BuildServers(opts)
	if err != nil {
		return err
	}
	return server.RunServers(ctx, servers, opts)
}

// closeLogger flushes queued entries when async logging is enabled.
func closeLogger(log logger.Logger) {
	if closer, ok := log.(interface{ Close() }); ok {
		closer.Close()
	}
}
