package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"narrator/common"
	"narrator/pipelines/narrated"
	"narrator/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP job server",
	Long:  "Accept scripts on POST /render and process them on a pool of workers. Job status is served on GET /status/:id.",
	Args:  cobra.NoArgs,
	RunE:  runServeCommand,
}

var (
	serveAddr    string
	serveWorkers int
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().IntVarP(&serveWorkers, "workers", "w", 0, "Worker goroutines (overrides server.workers)")
}

func runServeCommand(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveWorkers > 0 {
		cfg.Server.Workers = serveWorkers
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, closeFn, err := narrated.New(ctx, cfg, common.NewExecRunner())
	if err != nil {
		return err
	}
	defer closeFn()

	srv, err := server.New(cfg, pipeline)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
