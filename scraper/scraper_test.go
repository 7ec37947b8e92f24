package scraper

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/Wisny97/Projet-1/config"
	"github.com/Wisny97/Projet-1/models"
	"github.com/Wisny97/Projet-1/parser"
	"github.com/Wisny97/Projet-1/pipeline"
)

const homeHTML = `<html><body>
<div class="side_categories"><ul class="nav nav-list"><li>
  <a href="catalogue/category/books_1/index.html">Books</a>
  <ul>
    <li><a href="catalogue/category/books/poetry_23/index.html">Poetry</a></li>
    <li><a href="catalogue/category/books/travel_2/index.html">Travel</a></li>
  </ul>
</li></ul></div>
</body></html>`

func productHTML(title, upc, price string) string {
	return fmt.Sprintf(`<html><body>
<ul class="breadcrumb">
  <li><a href="../../index.html">Home</a></li>
  <li><a href="../category/books_1/index.html">Books</a></li>
  <li><a href="../category/books/poetry_23/index.html">Poetry</a></li>
  <li class="active">%[1]s</li>
</ul>
<h1>%[1]s</h1>
<p class="star-rating Two"></p>
<table class="table table-striped">
  <tr><th>UPC</th><td>%[2]s</td></tr>
  <tr><th>Price (excl. tax)</th><td>%[3]s</td></tr>
  <tr><th>Price (incl. tax)</th><td>%[3]s</td></tr>
  <tr><th>Availability</th><td>In stock (3 available)</td></tr>
</table>
</body></html>`, title, upc, price)
}

type testCatalog struct {
	transport *httpmock.MockTransport
	scraper   *Scraper
	cfg       *config.Config
}

func newTestCatalog(t *testing.T) *testCatalog {
	t.Helper()
	cfg := testConfig()
	cfg.OutputDir = t.TempDir()

	s, err := NewScraper(cfg, discardLogger())
	if err != nil {
		t.Fatalf("new scraper: %v", err)
	}
	transport := httpmock.NewMockTransport()
	s.fetcher.(*CollyFetcher).collector.WithTransport(transport)

	return &testCatalog{transport: transport, scraper: s, cfg: cfg}
}

func (c *testCatalog) page(url, body string) {
	c.transport.RegisterResponder("GET", url, httpmock.NewStringResponder(http.StatusOK, body))
}

func (c *testCatalog) run(t *testing.T) (*models.RunReport, error) {
	t.Helper()
	factory, err := pipeline.NewWriterFactory(c.cfg.OutputDir, c.cfg.OutputFormat, c.cfg.Columns)
	if err != nil {
		t.Fatalf("writer factory: %v", err)
	}
	p := pipeline.NewPipeline(context.Background(), c.scraper, factory, c.cfg, discardLogger())
	p.Start(c.cfg.Parallelism)
	return c.scraper.Run(context.Background(), p)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestScraperRunSkipsUnparseableProduct(t *testing.T) {
	c := newTestCatalog(t)
	c.page("http://example.test/", homeHTML)

	poetry := "http://example.test/catalogue/category/books/poetry_23/index.html"
	var teasers []string
	for i := 1; i <= 5; i++ {
		teasers = append(teasers, fmt.Sprintf("../../../poem-%d_%d/index.html", i, i))
		price := "£10.0" + fmt.Sprint(i)
		if i == 3 {
			price = "51,77"
		}
		c.page(fmt.Sprintf("http://example.test/catalogue/poem-%d_%d/index.html", i, i),
			productHTML(fmt.Sprintf("Poem %d", i), fmt.Sprintf("upc-%d", i), price))
	}
	c.page(poetry, listingHTML("", teasers...))
	c.page("http://example.test/catalogue/category/books/travel_2/index.html",
		listingHTML("", "../../../trip_9/index.html"))
	c.page("http://example.test/catalogue/trip_9/index.html", productHTML("Trip", "upc-9", "£20.00"))

	report, err := c.run(t)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(report.Categories) != 2 {
		t.Fatalf("categories = %d, want 2", len(report.Categories))
	}
	poetryReport := report.Categories[0]
	if poetryReport.Category.Name != "Poetry" || poetryReport.FileBase != "poetry" {
		t.Fatalf("first report = %+v, want Poetry in submission order", poetryReport)
	}
	if poetryReport.Failed() {
		t.Fatalf("poetry failed: %v", poetryReport.Err)
	}
	if poetryReport.Discovered != 5 || poetryReport.Written != 4 {
		t.Fatalf("discovered/written = %d/%d, want 5/4", poetryReport.Discovered, poetryReport.Written)
	}
	if len(poetryReport.Skipped) != 1 {
		t.Fatalf("skipped = %+v, want 1 entry", poetryReport.Skipped)
	}
	skipped := poetryReport.Skipped[0]
	if skipped.URL != "http://example.test/catalogue/poem-3_3/index.html" || skipped.ErrorType != "parse" {
		t.Fatalf("skipped = %+v", skipped)
	}

	rows := readCSV(t, filepath.Join(c.cfg.OutputDir, "poetry.csv"))
	if strings.Join(rows[0], ",") != strings.Join(models.DefaultColumns, ",") {
		t.Fatalf("header = %v", rows[0])
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header + 4", len(rows))
	}
	for i, want := range []string{"Poem 1", "Poem 2", "Poem 4", "Poem 5"} {
		if rows[i+1][2] != want {
			t.Fatalf("row %d title = %q, want %q", i+1, rows[i+1][2], want)
		}
	}
	if rows[1][8] != "2" || rows[1][9] != "" {
		t.Fatalf("rating/image = %q/%q, want 2 and empty", rows[1][8], rows[1][9])
	}

	travel := readCSV(t, filepath.Join(c.cfg.OutputDir, "travel.csv"))
	if len(travel) != 2 {
		t.Fatalf("travel rows = %d, want 2", len(travel))
	}

	if report.TotalWritten() != 5 || report.TotalSkipped() != 1 {
		t.Fatalf("totals = %d/%d, want 5/1", report.TotalWritten(), report.TotalSkipped())
	}
	// home + 2 listings + 6 products
	if report.RequestCount != 9 {
		t.Fatalf("requests = %d, want 9", report.RequestCount)
	}
	if report.ErrorsByType["parse"] != 1 {
		t.Fatalf("errors by type = %v", report.ErrorsByType)
	}
	if report.ID == "" {
		t.Fatalf("run id not set")
	}
}

func TestScraperRunIsolatesFailedCategory(t *testing.T) {
	c := newTestCatalog(t)
	c.page("http://example.test/", homeHTML)
	c.transport.RegisterResponder("GET", "http://example.test/catalogue/category/books/poetry_23/index.html",
		httpmock.NewStringResponder(http.StatusNotFound, ""))
	c.page("http://example.test/catalogue/category/books/travel_2/index.html",
		listingHTML("", "../../../trip_9/index.html"))
	c.page("http://example.test/catalogue/trip_9/index.html", productHTML("Trip", "upc-9", "£20.00"))

	report, err := c.run(t)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	failed := report.FailedCategories()
	if len(failed) != 1 || failed[0].Category.Name != "Poetry" {
		t.Fatalf("failed categories = %+v", failed)
	}
	var transportErr *TransportError
	if !errors.As(failed[0].Err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", failed[0].Err)
	}
	if failed[0].OutputPath != "" {
		t.Fatalf("failed category output path = %q, want none", failed[0].OutputPath)
	}
	if _, err := os.Stat(filepath.Join(c.cfg.OutputDir, "poetry.csv")); !os.IsNotExist(err) {
		t.Fatalf("poetry.csv stat error = %v, want not exist", err)
	}
	if report.Categories[1].Written != 1 {
		t.Fatalf("travel written = %d, want 1", report.Categories[1].Written)
	}
}

func TestScraperRunFailsWithoutSidebar(t *testing.T) {
	c := newTestCatalog(t)
	c.page("http://example.test/", "<html><body><p>down for maintenance</p></body></html>")

	_, err := c.run(t)
	var structErr *parser.StructureError
	if !errors.As(err, &structErr) {
		t.Fatalf("expected StructureError, got %v", err)
	}
}

func TestScraperRunFailsWhenHomeUnreachable(t *testing.T) {
	c := newTestCatalog(t)
	c.transport.RegisterResponder("GET", "http://example.test/", httpmock.NewStringResponder(http.StatusForbidden, ""))

	_, err := c.run(t)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

type collectingSink struct {
	mu      sync.Mutex
	records []*models.ProductRecord
}

func (c *collectingSink) Emit(record *models.ProductRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func TestDiscoverThenExtractWithFakeFetcher(t *testing.T) {
	cfg := testConfig()
	fetcher := newFakeFetcher(map[string]string{
		listingBase + "index.html":  listingHTML("page-2.html", "../../../a_1/index.html"),
		listingBase + "page-2.html": listingHTML("", "../../../b_2/index.html", "../../../gone_3/index.html"),
		"http://example.test/catalogue/a_1/index.html": productHTML("A", "upc-a", "£1.00"),
		"http://example.test/catalogue/b_2/index.html": productHTML("B", "upc-b", "£2.00"),
	})
	s := NewScraperWithFetcher(cfg, fetcher, NewMetrics(), discardLogger())

	category := models.Category{Name: "Travel", ListingURL: listingBase + "index.html"}
	report := &models.CategoryReport{Category: category}
	links, err := s.Discover(context.Background(), category, report)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if report.Pages != 2 || report.Discovered != 3 || len(links) != 3 {
		t.Fatalf("pages/discovered/links = %d/%d/%d, want 2/3/3", report.Pages, report.Discovered, len(links))
	}

	sink := &collectingSink{}
	s.ExtractProducts(context.Background(), links, sink, report)

	if report.Failed() {
		t.Fatalf("category failed: %v", report.Err)
	}
	if len(sink.records) != 2 || sink.records[0].Title != "A" || sink.records[1].Title != "B" {
		t.Fatalf("records = %+v", sink.records)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].ErrorType != "not_found" {
		t.Fatalf("skipped = %+v", report.Skipped)
	}
	if stats := s.Stats(); stats.Requests != 5 {
		t.Fatalf("requests = %d, want 5", stats.Requests)
	}
}

func TestDiscoverReturnsWalkFailure(t *testing.T) {
	cfg := testConfig()
	fetcher := newFakeFetcher(map[string]string{
		listingBase + "index.html": listingHTML("page-2.html", "../../../a_1/index.html"),
	})
	s := NewScraperWithFetcher(cfg, fetcher, NewMetrics(), discardLogger())

	category := models.Category{Name: "Travel", ListingURL: listingBase + "index.html"}
	report := &models.CategoryReport{Category: category}
	links, err := s.Discover(context.Background(), category, report)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if links != nil {
		t.Fatalf("links = %v, want none", links)
	}
	if report.Pages != 1 {
		t.Fatalf("pages = %d, want 1", report.Pages)
	}
}

func TestDiscoverCancelled(t *testing.T) {
	cfg := testConfig()
	fetcher := newFakeFetcher(map[string]string{
		listingBase + "index.html": listingHTML("", "../../../a_1/index.html"),
	})
	s := NewScraperWithFetcher(cfg, fetcher, NewMetrics(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	category := models.Category{Name: "Travel", ListingURL: listingBase + "index.html"}
	_, err := s.Discover(ctx, category, &models.CategoryReport{Category: category})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("discover error = %v, want context.Canceled", err)
	}
}

func TestExtractProductsCancelled(t *testing.T) {
	cfg := testConfig()
	s := NewScraperWithFetcher(cfg, newFakeFetcher(nil), NewMetrics(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &collectingSink{}
	report := &models.CategoryReport{Category: models.Category{Name: "Travel"}}
	s.ExtractProducts(ctx, []string{"http://example.test/catalogue/a_1/index.html"}, sink, report)

	if !errors.Is(report.Err, context.Canceled) {
		t.Fatalf("report error = %v, want context.Canceled", report.Err)
	}
	if len(sink.records) != 0 {
		t.Fatalf("records = %+v, want none", sink.records)
	}
}
