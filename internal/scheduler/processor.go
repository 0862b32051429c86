package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heapdump-analysis/internal/heap"
	"github.com/heapdump-analysis/internal/repository"
	"github.com/heapdump-analysis/internal/storage"
	"github.com/heapdump-analysis/pkg/config"
	"github.com/heapdump-analysis/pkg/model"
	"github.com/heapdump-analysis/pkg/utils"
)

// defaultTopN bounds BiggestClasses/BiggestObjects when a job doesn't
// override it via JobOptions.TopN.
const defaultTopN = 50

// DefaultJobProcessor runs the C1-C5 heap analysis pipeline (internal/heap)
// over a downloaded dump and persists the resulting AnalysisReport.
type DefaultJobProcessor struct {
	config  *config.Config
	storage storage.Storage
	repos   *repository.Repositories
	logger  utils.Logger
}

// ProcessorConfig holds processor configuration.
type ProcessorConfig struct {
	Config  *config.Config
	Storage storage.Storage
	Repos   *repository.Repositories
	Logger  utils.Logger
}

// NewDefaultJobProcessor creates a new DefaultJobProcessor.
func NewDefaultJobProcessor(cfg *ProcessorConfig) *DefaultJobProcessor {
	if cfg.Logger == nil {
		cfg.Logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &DefaultJobProcessor{
		config:  cfg.Config,
		storage: cfg.Storage,
		repos:   cfg.Repos,
		logger:  cfg.Logger,
	}
}

// Process downloads the dump, opens it through internal/heap, and persists
// the summary report and (if computed) the dominator run record.
func (p *DefaultJobProcessor) Process(ctx context.Context, job *Job) error {
	p.logger.Info("Starting analysis for job %s (dump size: %d bytes)", job.UUID, job.DumpSizeBytes)

	indexDir := p.config.IndexDirFor(job.UUID)
	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	localDump := filepath.Join(indexDir, filepath.Base(job.DumpPath))
	if err := p.storage.DownloadFile(ctx, job.DumpPath, localDump); err != nil {
		return fmt.Errorf("failed to download dump: %w", err)
	}

	hd, err := heap.Open(localDump, p.heapOptions(job, indexDir))
	if err != nil {
		return fmt.Errorf("failed to open heap dump: %w", err)
	}
	defer hd.Close()

	report, err := p.buildReport(job, hd)
	if err != nil {
		return fmt.Errorf("failed to build analysis report: %w", err)
	}

	if err := p.repos.Report.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("failed to save analysis report: %w", err)
	}

	if hd.HasDominators() {
		run := &model.DominatorRun{
			JobUUID:                job.UUID,
			ComputedAt:             time.Now(),
			ObjectCount:            int64(hd.ObjectCount()),
			StagnationGuardTripped: report.StagnationGuardTripped,
		}
		if err := p.repos.DominatorRun.SaveRun(ctx, run); err != nil {
			p.logger.Warn("Failed to save dominator run for job %s: %v", job.UUID, err)
		}
	}

	if err := p.repos.Job.UpdateStatus(ctx, job.ID, model.JobStatusCompleted); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	p.logger.Info("Job %s analysis completed successfully", job.UUID)
	return nil
}

// heapOptions derives internal/heap's HeapDumpOptions from the job's
// per-job overrides layered on top of the ambient analysis config.
func (p *DefaultJobProcessor) heapOptions(job *Job, indexDir string) heap.HeapDumpOptions {
	opts := heap.DefaultOptions()
	opts.DataDir = indexDir
	opts.MmapSegmentSize = p.config.Analysis.MmapSegmentSize
	opts.ComputeDominators = job.Options.ComputeDominators
	opts.TrackInboundRefs = job.Options.InboundIndexEnabled || p.config.Analysis.InboundIndexEnabled
	opts.ParsingMode = parseParsingMode(job.Options.ParsingMode)
	return opts
}

func parseParsingMode(mode string) heap.ParsingMode {
	switch strings.ToUpper(mode) {
	case "IN_MEMORY":
		return heap.ModeInMemory
	case "INDEXED":
		return heap.ModeIndexed
	default:
		return heap.ModeAuto
	}
}

// buildReport summarizes a loaded heap dump into the persisted report shape.
func (p *DefaultJobProcessor) buildReport(job *Job, hd *heap.HeapDump) (*model.AnalysisReport, error) {
	topN := job.Options.TopN
	if topN <= 0 {
		topN = defaultTopN
	}

	totalShallowByClass := make(map[int32]int64, hd.ClassCount())
	for _, o := range hd.FilterObjects(func(*heap.Object) bool { return true }) {
		if c, ok := o.Class(); ok {
			totalShallowByClass[c.ClassID32] += o.ShallowSize()
		}
	}

	classes := hd.BiggestClassesByTotalShallow(topN)
	classSummaries := make([]model.ClassSummary, 0, len(classes))
	for _, c := range classes {
		classSummaries = append(classSummaries, model.ClassSummary{
			Name:              c.Name,
			InstanceCount:     c.InstanceCount,
			TotalShallowBytes: totalShallowByClass[c.ClassID32],
		})
	}

	metric := heap.ByShallowSize
	guardTripped := false
	if hd.HasDominators() {
		metric = heap.ByRetainedSize
		if res, err := hd.ComputeDominators(); err == nil { // memoized result
			guardTripped = res.Approximate
		}
	}
	objects := hd.BiggestObjects(topN, metric)
	objectSummaries := make([]model.ObjectSummary, 0, len(objects))
	for _, o := range objects {
		className := "unknown"
		if c, ok := o.Class(); ok {
			className = c.Name
		}
		objectSummaries = append(objectSummaries, model.ObjectSummary{
			ObjectID32:    o.ID32(),
			ClassName:     className,
			ShallowBytes:  o.ShallowSize(),
			RetainedBytes: o.RetainedSize(),
		})
	}

	report := &model.AnalysisReport{
		JobUUID:            job.UUID,
		Version:            p.config.Analysis.Version,
		ObjectCount:        int64(hd.ObjectCount()),
		ClassCount:         int64(hd.ClassCount()),
		TotalHeapBytes:     hd.TotalHeapSize(),
		DominatorsComputed: hd.HasDominators(),
		BiggestClasses:     classSummaries,
		BiggestObjects:     objectSummaries,
		AnalyzedAt:         time.Now(),
	}
	report.StagnationGuardTripped = guardTripped
	return report, nil
}
