package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/heapdump-analysis/internal/heap"
)

var (
	// Analyze command flags
	analyzeInput       string
	analyzeOutputDir   string
	analyzeDataDir     string
	analyzeTopN        int
	analyzeDominators  bool
	analyzeInboundRefs bool
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the C1-C5 pipeline over a heap dump and print a summary",
	Long: `Analyze decodes an HPROF heap dump, builds its object/class index, and
reports the biggest classes and objects by shallow (or, with --dominators,
retained) size.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	binName := BinName()
	analyzeCmd.Example = fmt.Sprintf(`  # Analyze a heap dump, shallow-size ranking only
  %s analyze -i ./heap.hprof

  # Compute dominators for retained-size ranking, top 100
  %s analyze -i ./heap.hprof --dominators -n 100

  # Choose where the on-disk index goes (written only in INDEXED mode)
  %s analyze -i ./heap.hprof --data-dir ./data/my-dump`,
		binName, binName, binName)

	analyzeCmd.Flags().StringVarP(&analyzeInput, "input", "i", "", "Path to the .hprof file (required)")
	analyzeCmd.Flags().StringVarP(&analyzeOutputDir, "output", "o", "./output", "Output directory for the summary.json")
	analyzeCmd.Flags().StringVar(&analyzeDataDir, "data-dir", "", "Directory for the on-disk index, written only in INDEXED mode (defaults to index-<input file name> under --output)")
	analyzeCmd.Flags().IntVarP(&analyzeTopN, "top", "n", 50, "Number of top classes/objects to report")
	analyzeCmd.Flags().BoolVar(&analyzeDominators, "dominators", false, "Compute dominators and rank objects by retained size")
	analyzeCmd.Flags().BoolVar(&analyzeInboundRefs, "inbound-refs", false, "Build the inbound-reference index eagerly")
	analyzeCmd.MarkFlagRequired("input")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := GetLogger()

	if _, err := os.Stat(analyzeInput); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", analyzeInput)
	}

	if err := os.MkdirAll(analyzeOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	dataDir := analyzeDataDir
	if dataDir == "" {
		dataDir = filepath.Join(analyzeOutputDir, "index-"+filepath.Base(analyzeInput))
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	log.Info("=== heapdump-analysis ===")
	log.Info("Input file: %s", analyzeInput)
	log.Info("Data dir:   %s", dataDir)
	log.Info("Dominators: %v", analyzeDominators)

	opts := heap.DefaultOptions()
	opts.DataDir = dataDir
	opts.ComputeDominators = analyzeDominators
	opts.TrackInboundRefs = analyzeInboundRefs

	start := time.Now()
	hd, err := heap.Open(analyzeInput, opts)
	if err != nil {
		return fmt.Errorf("failed to open heap dump: %w", err)
	}
	defer hd.Close()
	elapsed := time.Since(start)

	log.Info("Opened in %v: %d objects, %d classes, %d bytes total heap", elapsed, hd.ObjectCount(), hd.ClassCount(), hd.TotalHeapSize())

	summary := buildAnalyzeSummary(hd, analyzeTopN)

	log.Info("")
	log.Info("Top classes by total shallow size:")
	for i, c := range summary.BiggestClasses {
		if i >= 10 {
			break
		}
		log.Info("  %2d. %-40s  instances=%d  shallow=%d", i+1, c.Name, c.InstanceCount, c.TotalShallowBytes)
	}

	summaryPath := filepath.Join(analyzeOutputDir, "summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	if err := os.WriteFile(summaryPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	log.Info("")
	log.Info("=== Analysis Complete ===")
	log.Info("Summary written to: %s", summaryPath)

	return nil
}

// analyzeSummary is the CLI's own JSON output shape, distinct from
// model.AnalysisReport (which is what the scheduler persists via gorm) so a
// local one-shot run doesn't need a database to produce a result.
type analyzeSummary struct {
	ObjectCount        int64                `json:"object_count"`
	ClassCount         int64                `json:"class_count"`
	TotalHeapBytes     int64              `json:"total_heap_bytes"`
	DominatorsComputed bool               `json:"dominators_computed"`
	BiggestClasses     []analyzeClassRow  `json:"biggest_classes"`
	BiggestObjects     []analyzeObjectRow `json:"biggest_objects"`
}

type analyzeClassRow struct {
	Name              string `json:"name"`
	InstanceCount     int64  `json:"instance_count"`
	TotalShallowBytes int64  `json:"total_shallow_bytes"`
}

type analyzeObjectRow struct {
	ObjectID32    int32  `json:"object_id32"`
	ClassName     string `json:"class_name"`
	ShallowBytes  int64  `json:"shallow_bytes"`
	RetainedBytes int64  `json:"retained_bytes"`
}

func buildAnalyzeSummary(hd *heap.HeapDump, topN int) *analyzeSummary {
	totalShallowByClass := make(map[int32]int64, hd.ClassCount())
	for _, o := range hd.FilterObjects(func(*heap.Object) bool { return true }) {
		if c, ok := o.Class(); ok {
			totalShallowByClass[c.ClassID32] += o.ShallowSize()
		}
	}

	classes := hd.BiggestClassesByTotalShallow(topN)
	classRows := make([]analyzeClassRow, 0, len(classes))
	for _, c := range classes {
		classRows = append(classRows, analyzeClassRow{
			Name:              c.Name,
			InstanceCount:     c.InstanceCount,
			TotalShallowBytes: totalShallowByClass[c.ClassID32],
		})
	}

	metric := heap.ByShallowSize
	if hd.HasDominators() {
		metric = heap.ByRetainedSize
	}
	objects := hd.BiggestObjects(topN, metric)
	objectRows := make([]analyzeObjectRow, 0, len(objects))
	for _, o := range objects {
		className := "unknown"
		if c, ok := o.Class(); ok {
			className = c.Name
		}
		objectRows = append(objectRows, analyzeObjectRow{
			ObjectID32:    o.ID32(),
			ClassName:     className,
			ShallowBytes:  o.ShallowSize(),
			RetainedBytes: o.RetainedSize(),
		})
	}

	return &analyzeSummary{
		ObjectCount:        int64(hd.ObjectCount()),
		ClassCount:         int64(hd.ClassCount()),
		TotalHeapBytes:     hd.TotalHeapSize(),
		DominatorsComputed: hd.HasDominators(),
		BiggestClasses:     classRows,
		BiggestObjects:     objectRows,
	}
}
