package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Wisny97/Projet-1/config"
	"github.com/Wisny97/Projet-1/models"
	"github.com/Wisny97/Projet-1/parser"
	"github.com/Wisny97/Projet-1/pipeline"
)

// Scraper enumerates catalog categories and extracts every product in them.
// It implements pipeline.Processor.
type Scraper struct {
	// RunID identifies the run in reports and the status store.
	RunID string

	cfg     *config.Config
	fetcher Fetcher
	counted *countingFetcher
	walker  *Walker
	logger  *slog.Logger
	Metrics *Metrics

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewScraper builds a scraper backed by a colly fetcher configured from cfg.
func NewScraper(cfg *config.Config, logger *slog.Logger) (*Scraper, error) {
	metrics := NewMetrics()
	fetcher, err := NewCollyFetcher(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}
	return NewScraperWithFetcher(cfg, fetcher, metrics, logger), nil
}

// NewScraperWithFetcher builds a scraper around an existing fetcher.
func NewScraperWithFetcher(cfg *config.Config, fetcher Fetcher, metrics *Metrics, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	counted := &countingFetcher{Fetcher: fetcher}
	return &Scraper{
		RunID:        uuid.NewString(),
		cfg:          cfg,
		fetcher:      fetcher,
		counted:      counted,
		walker:       NewWalker(counted, cfg.MaxPages, cfg.VisitedCacheSize, logger),
		logger:       logger.With("component", "scraper"),
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}
}

// Run enumerates categories, feeds them to p and waits for p to drain. The
// only error returned is an enumeration failure; category and product
// failures are carried by the report.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	report := &models.RunReport{
		ID:        s.RunID,
		HomeURL:   s.cfg.HomeURL,
		OutputDir: s.cfg.OutputDir,
		StartTime: time.Now(),
	}

	categories, err := s.Categories(ctx, s.cfg.HomeURL)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("enumerate categories: %w", err)
	}
	s.logger.Info("categories discovered", slog.Int("count", len(categories)))

	for _, category := range categories {
		if _, err := p.Submit(category); err != nil {
			s.logger.Warn("category not submitted",
				slog.String("category", category.Name),
				slog.Any("error", err),
			)
			if errors.Is(err, context.Canceled) || errors.Is(err, pipeline.ErrPipelineClosed) {
				break
			}
		}
	}
	p.Close()

	report.Categories = p.Reports()
	report.EndTime = time.Now()
	stats := s.Stats()
	report.RequestCount = stats.Requests
	report.RetryCount = stats.Retries
	report.ErrorsByType = s.snapshotErrors()
	return report, nil
}

// Categories fetches the home page and returns its sidebar categories.
func (s *Scraper) Categories(ctx context.Context, homeURL string) ([]models.Category, error) {
	body, err := s.fetch(WithPhase(ctx, PhaseHome), homeURL)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	doc, err := parser.ParseDocument(homeURL, body)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	categories, err := parser.ParseCategories(doc, homeURL)
	if err != nil {
		s.recordError(err)
		return nil, err
	}
	return categories, nil
}

// Discover walks category's listing pages and returns its product links in
// discovery order. A walk error fails the category before any output exists.
func (s *Scraper) Discover(ctx context.Context, category models.Category, report *models.CategoryReport) ([]string, error) {
	s.logger.Info("category started",
		slog.String("category", category.Name),
		slog.String("listing", category.ListingURL),
	)

	walk, err := s.walker.Walk(ctx, category.ListingURL)
	if walk != nil {
		report.Pages = walk.Pages
		report.Discovered = len(walk.Links)
	}
	if err != nil {
		s.recordError(err)
		s.Metrics.IncCategory("failed")
		return nil, err
	}
	return walk.Links, nil
}

// ExtractProducts fetches and parses each link, emitting records into sink.
// A failing product is skipped; a failing sink or a cancelled ctx aborts the
// category.
func (s *Scraper) ExtractProducts(ctx context.Context, links []string, sink pipeline.Sink, report *models.CategoryReport) {
	logger := s.logger.With(slog.String("category", report.Category.Name))

	productCtx := WithPhase(ctx, PhaseProduct)
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			s.Metrics.IncCategory("failed")
			report.Fail(err)
			return
		}

		record, err := s.scrapeProduct(productCtx, link)
		if err != nil {
			label := s.recordError(err)
			s.Metrics.IncSkipped(label)
			report.Skipped = append(report.Skipped, models.SkippedProduct{
				URL:       link,
				ErrorType: label,
				Reason:    err.Error(),
			})
			logger.Warn("product skipped",
				slog.String("url", link),
				slog.String("error_type", label),
				slog.Any("error", err),
			)
			continue
		}

		if err := sink.Emit(record); err != nil {
			s.Metrics.IncCategory("failed")
			report.Fail(fmt.Errorf("write record: %w", err))
			return
		}
		s.Metrics.IncRecords()
	}

	s.Metrics.IncCategory("ok")
}

// Stats reports request and retry counts. Fetchers that do not track HTTP
// attempts are counted per fetch.
func (s *Scraper) Stats() FetchStats {
	if tracked, ok := s.fetcher.(interface{ Stats() FetchStats }); ok {
		return tracked.Stats()
	}
	return FetchStats{Requests: int(atomic.LoadInt64(&s.counted.count))}
}

func (s *Scraper) scrapeProduct(ctx context.Context, link string) (*models.ProductRecord, error) {
	body, err := s.fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	doc, err := parser.ParseDocument(link, body)
	if err != nil {
		return nil, err
	}
	return parser.Extract(doc, link)
}

func (s *Scraper) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return s.counted.Fetch(ctx, rawURL)
}

// countingFetcher counts fetches for fetchers that keep no stats of their own.
type countingFetcher struct {
	Fetcher
	count int64
}

func (c *countingFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	atomic.AddInt64(&c.count, 1)
	return c.Fetcher.Fetch(ctx, rawURL)
}

func (s *Scraper) recordError(err error) string {
	label := errorTypeLabel(err)
	s.mu.Lock()
	s.errorsByType[label]++
	s.mu.Unlock()
	return label
}

func (s *Scraper) snapshotErrors() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
