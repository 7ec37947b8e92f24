package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Wisny97/Projet-1/config"
	"github.com/Wisny97/Projet-1/models"
)

var (
	// ErrPipelineClosed is returned when Submit is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Sink receives the records of the category being processed.
type Sink interface {
	Emit(record *models.ProductRecord) error
}

// Processor crawls one category in two steps. Discover walks the listing
// pages and fills in report's Pages and Discovered; a Discover error aborts the
// category before any output file exists. ExtractProducts emits one record per
// usable product link and fills in Skipped, or Err when the category stops
// early.
type Processor interface {
	Discover(ctx context.Context, category models.Category, report *models.CategoryReport) ([]string, error)
	ExtractProducts(ctx context.Context, links []string, sink Sink, report *models.CategoryReport)
}

type task struct {
	seq      int
	category models.Category
	fileBase string
}

type result struct {
	seq    int
	report models.CategoryReport
}

// Pipeline runs categories on a bounded set of workers. Each category owns
// its writer; a coordinator collects reports in submission order.
type Pipeline struct {
	ctx       context.Context
	processor Processor
	newWriter WriterFactory
	batchSize int
	logger    *slog.Logger
	onReport  func(models.CategoryReport)

	taskCh    chan task
	resultCh  chan result
	coordDone chan struct{}
	names     *namer

	wg sync.WaitGroup

	metrics metrics

	mu      sync.Mutex // guards closed/started/reports
	closed  bool
	started bool
	reports []models.CategoryReport

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing through newWriter.
func NewPipeline(ctx context.Context, processor Processor, newWriter WriterFactory, cfg *config.Config, logger *slog.Logger) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	buffer := cfg.Parallelism * 2
	if buffer <= 0 {
		buffer = 1
	}

	return &Pipeline{
		ctx:       ctx,
		processor: processor,
		newWriter: newWriter,
		batchSize: batchSize,
		logger:    logger.With("component", "pipeline"),
		taskCh:    make(chan task, buffer),
		resultCh:  make(chan result, buffer),
		coordDone: make(chan struct{}),
		names:     newNamer(),
		shutdown:  make(chan struct{}),
	}
}

// OnReport registers fn to be called from the coordinator as each category
// finishes. It must be set before Start.
func (p *Pipeline) OnReport(fn func(models.CategoryReport)) {
	p.onReport = fn
}

// Start launches the coordinator and worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.coordinate()
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit queues a category and returns the file base assigned to it.
func (p *Pipeline) Submit(category models.Category) (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrPipelineClosed
	}
	seq := len(p.reports)
	fileBase := p.names.claim(category.Name)
	p.reports = append(p.reports, models.CategoryReport{Category: category, FileBase: fileBase})
	p.mu.Unlock()

	p.metrics.incSubmitted()
	if err := p.enqueue(task{seq: seq, category: category, fileBase: fileBase}); err != nil {
		p.mu.Lock()
		p.reports[seq].Fail(err)
		p.mu.Unlock()
		return fileBase, err
	}
	return fileBase, nil
}

// Close stops accepting categories and waits for the queued ones to finish.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.taskCh)
	})

	if started {
		p.wg.Wait()
		close(p.resultCh)
		<-p.coordDone
	}
	p.signalShutdown()
	return nil
}

// Reports returns the category reports in submission order.
func (p *Pipeline) Reports() []models.CategoryReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.CategoryReport, len(p.reports))
	copy(out, p.reports)
	return out
}

// Progress is a snapshot of the pipeline counters.
type Progress struct {
	Submitted int
	Completed int
	Failed    int
	Written   int
	Skipped   int
}

// GetProgress returns a snapshot of the internal counters.
func (p *Pipeline) GetProgress() Progress {
	return p.metrics.snapshot()
}

// StartProgressReporting emits periodic progress logs until Close.
func (p *Pipeline) StartProgressReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				progress := p.GetProgress()
				p.logger.Info("pipeline progress",
					slog.Int("submitted", progress.Submitted),
					slog.Int("completed", progress.Completed),
					slog.Int("failed", progress.Failed),
					slog.Int("written", progress.Written),
					slog.Int("skipped", progress.Skipped),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	for t := range p.taskCh {
		report := p.runCategory(t)
		p.resultCh <- result{seq: t.seq, report: report}
	}
}

func (p *Pipeline) runCategory(t task) models.CategoryReport {
	report := models.CategoryReport{
		Category:  t.category,
		FileBase:  t.fileBase,
		StartTime: time.Now(),
	}
	defer func() {
		report.EndTime = time.Now()
	}()

	if err := p.ctx.Err(); err != nil {
		report.Fail(err)
		return report
	}

	links, err := p.processor.Discover(p.ctx, t.category, &report)
	if err != nil {
		report.Fail(err)
		return report
	}

	writer, err := p.newWriter(t.fileBase)
	if err != nil {
		report.Fail(fmt.Errorf("open writer: %w", err))
		return report
	}
	report.OutputPath = writer.Path()

	batch := newBatchWriter(writer, p.batchSize)
	p.processor.ExtractProducts(p.ctx, links, batch, &report)

	if err := batch.Flush(); err != nil {
		report.Fail(fmt.Errorf("write batch: %w", err))
	}
	report.Written = batch.Written()
	if err := writer.Validate(); err != nil {
		report.Fail(fmt.Errorf("validate output: %w", err))
	}
	if err := writer.Close(); err != nil {
		report.Fail(fmt.Errorf("close output: %w", err))
	}
	return report
}

func (p *Pipeline) coordinate() {
	defer close(p.coordDone)

	for res := range p.resultCh {
		p.mu.Lock()
		p.reports[res.seq] = res.report
		p.mu.Unlock()

		p.metrics.addReport(res.report)
		if res.report.Failed() {
			p.logger.Warn("category failed",
				slog.String("category", res.report.Category.Name),
				slog.String("error", res.report.Error),
			)
		} else {
			p.logger.Info("category finished",
				slog.String("category", res.report.Category.Name),
				slog.String("output", res.report.OutputPath),
				slog.Int("written", res.report.Written),
				slog.Int("skipped", len(res.report.Skipped)),
			)
		}
		if p.onReport != nil {
			p.onReport(res.report)
		}
	}
}

func (p *Pipeline) enqueue(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.taskCh <- t:
		return nil
	}
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// batchWriter buffers emitted records and writes them in batches.
type batchWriter struct {
	writer  RecordWriter
	size    int
	pending []*models.ProductRecord
	written int
}

func newBatchWriter(writer RecordWriter, size int) *batchWriter {
	return &batchWriter{
		writer:  writer,
		size:    size,
		pending: make([]*models.ProductRecord, 0, size),
	}
}

func (b *batchWriter) Emit(record *models.ProductRecord) error {
	if record == nil {
		return nil
	}
	b.pending = append(b.pending, record)
	if len(b.pending) >= b.size {
		return b.Flush()
	}
	return nil
}

func (b *batchWriter) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := b.writer.Write(b.pending); err != nil {
		return err
	}
	b.written += len(b.pending)
	b.pending = b.pending[:0]
	return nil
}

func (b *batchWriter) Written() int {
	return b.written
}

type metrics struct {
	mu        sync.Mutex
	submitted int
	completed int
	failed    int
	written   int
	skipped   int
}

func (m *metrics) incSubmitted() {
	m.mu.Lock()
	m.submitted++
	m.mu.Unlock()
}

func (m *metrics) addReport(report models.CategoryReport) {
	m.mu.Lock()
	m.completed++
	if report.Failed() {
		m.failed++
	}
	m.written += report.Written
	m.skipped += len(report.Skipped)
	m.mu.Unlock()
}

func (m *metrics) snapshot() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Progress{
		Submitted: m.submitted,
		Completed: m.completed,
		Failed:    m.failed,
		Written:   m.written,
		Skipped:   m.skipped,
	}
}
