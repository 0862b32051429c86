package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/heapdump-analysis/internal/rpc"
)

var (
	queryAddr       string
	queryInput      string
	queryDataDir    string
	queryClassName  string
	queryObjectID   int32
	queryFindPath   bool
	queryDominators bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Answer a single lookup against a running HeapQueryService",
	Long: `Query opens (or reuses) a dump through a running HeapQueryService and
answers one lookup selected by flags: --class for a class summary,
--object for an object summary, --object with --find-path for a
path-to-gc-root, or --compute-dominators to trigger C4 on the open dump.`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	binName := BinName()
	queryCmd.Example = `  # Look up a class
  ` + binName + ` query -i ./heap.hprof --class java.lang.String

  # Look up an object and its shallow/retained size
  ` + binName + ` query -i ./heap.hprof --object 42

  # Find the shortest path from an object back to a gc root
  ` + binName + ` query -i ./heap.hprof --object 42 --find-path

  # Trigger dominator computation on the server-side open dump
  ` + binName + ` query -i ./heap.hprof --compute-dominators`

	queryCmd.Flags().StringVar(&queryAddr, "addr", "localhost:7070", "Address of a running HeapQueryService")
	queryCmd.Flags().StringVarP(&queryInput, "input", "i", "", "Path to the .hprof file (required, resolved server-side)")
	queryCmd.Flags().StringVar(&queryDataDir, "data-dir", "", "Index directory to pass on OpenDump")
	queryCmd.Flags().StringVar(&queryClassName, "class", "", "Look up a class by name")
	queryCmd.Flags().Int32Var(&queryObjectID, "object", -1, "Look up an object by its dense id32")
	queryCmd.Flags().BoolVar(&queryFindPath, "find-path", false, "With --object, find the shortest path to a gc root")
	queryCmd.Flags().BoolVar(&queryDominators, "compute-dominators", false, "Compute dominators on the server-side open dump")
	queryCmd.MarkFlagRequired("input")
}

func runQuery(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	client, conn, err := rpc.Dial(queryAddr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", queryAddr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	opened, err := client.OpenDump(ctx, &rpc.OpenDumpRequest{
		DumpPath: queryInput,
		DataDir:  queryDataDir,
	})
	if err != nil {
		return fmt.Errorf("OpenDump failed: %w", err)
	}
	log.Info("Handle %s: %d objects, %d classes, dominators_computed=%v", opened.Handle, opened.ObjectCount, opened.ClassCount, opened.DominatorsComputed)

	switch {
	case queryDominators:
		resp, err := client.ComputeDominators(ctx, &rpc.ComputeDominatorsRequest{Handle: opened.Handle})
		if err != nil {
			return fmt.Errorf("ComputeDominators failed: %w", err)
		}
		if resp.ErrorMessage != "" {
			return fmt.Errorf("ComputeDominators: %s", resp.ErrorMessage)
		}
		log.Info("Dominators computed in %dms over %d objects (approximate=%v)", resp.ElapsedMs, resp.ObjectCount, resp.Approximate)

	case queryClassName != "":
		resp, err := client.GetClass(ctx, &rpc.GetClassRequest{Handle: opened.Handle, ClassName: queryClassName})
		if err != nil {
			return fmt.Errorf("GetClass failed: %w", err)
		}
		log.Info("class %s: id32=%d instances=%d", resp.Name, resp.ClassID32, resp.InstanceCount)

	case queryObjectID >= 0 && queryFindPath:
		resp, err := client.FindPathToRoot(ctx, &rpc.FindPathToRootRequest{Handle: opened.Handle, ObjectID32: queryObjectID})
		if err != nil {
			return fmt.Errorf("FindPathToRoot failed: %w", err)
		}
		log.Info("path to gc root (found=%v): %v", resp.Found, resp.PathObjectID32s)

	case queryObjectID >= 0:
		resp, err := client.GetObject(ctx, &rpc.GetObjectRequest{Handle: opened.Handle, ObjectID32: queryObjectID})
		if err != nil {
			return fmt.Errorf("GetObject failed: %w", err)
		}
		log.Info("object %d: class=%s shallow=%d retained=%d array=%v", resp.ObjectID32, resp.ClassName, resp.ShallowBytes, resp.RetainedBytes, resp.IsArray)

	default:
		return fmt.Errorf("specify one of --class, --object, or --compute-dominators")
	}

	return nil
}
