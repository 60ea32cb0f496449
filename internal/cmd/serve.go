package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/collectivehq/collectivist/internal/observability"
	"github.com/collectivehq/collectivist/internal/publish"
	"github.com/collectivehq/collectivist/internal/server"
)

var serveOpts struct {
	host string
	port int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve exposes collection registration, pipeline runs, scheduling, and
model configuration over HTTP, with progress streamed to WebSocket
clients at /ws.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(serveOpts.host, serveOpts.port, newRegistry(), publish.New())

		// Mirror the event stream onto the server log.
		sink := srv.Bus().Subscribe()
		go func() {
			for {
				ev, ok := sink.Next()
				if !ok {
					return
				}
				observability.Logger.Info("pipeline event",
					zap.String("stage", ev.Stage),
					zap.String("level", string(ev.Level)),
					zap.String("message", ev.Message),
				)
			}
		}()
		defer sink.Close()

		observability.Logger.Info("serving API",
			zap.String("host", serveOpts.host),
			zap.Int("port", serveOpts.port),
		)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.host, "host", "127.0.0.1", "bind address")
	serveCmd.Flags().IntVar(&serveOpts.port, "port", 8420, "listen port")
	rootCmd.AddCommand(serveCmd)
}
