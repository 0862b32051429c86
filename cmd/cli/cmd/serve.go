package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heapdump-analysis/internal/rpc"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the grpc HeapQueryService",
	Long: `Start a grpc server exposing the HeapQueryService: OpenDump, GetObject,
GetClass, FindPathToRoot, and ComputeDominators over internal/heap, so a
dump opened once doesn't need to be reopened for every follow-up query.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	binName := BinName()
	serveCmd.Example = `  # Start the query service on the default address
  ` + binName + ` serve

  # Bind to a specific address
  ` + binName + ` serve --addr 0.0.0.0:7070`

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":7070", "Listen address for the HeapQueryService")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	lis, err := net.Listen("tcp", serveAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", serveAddr, err)
	}

	srv := rpc.NewServer(log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HeapQueryService listening on %s", serveAddr)
		errCh <- rpc.Serve(lis, srv)
	}()

	select {
	case <-sigChan:
		log.Info("Shutting down HeapQueryService...")
		lis.Close()
		return nil
	case err := <-errCh:
		return err
	}
}
