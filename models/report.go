package models

import "time"

// SkippedProduct records a product page that produced no row.
type SkippedProduct struct {
	URL       string `json:"url"`
	ErrorType string `json:"error_type"`
	Reason    string `json:"reason"`
}

// CategoryReport summarises one category's walk, extraction and write.
type CategoryReport struct {
	Category   Category         `json:"category"`
	FileBase   string           `json:"file_base"`
	OutputPath string           `json:"output_path"`
	Pages      int              `json:"pages"`
	Discovered int              `json:"discovered"`
	Written    int              `json:"written"`
	Skipped    []SkippedProduct `json:"skipped,omitempty"`
	Err        error            `json:"-"`
	Error      string           `json:"error,omitempty"`
	StartTime  time.Time        `json:"start_time"`
	EndTime    time.Time        `json:"end_time"`
}

// Fail records err as the category-level failure.
func (r *CategoryReport) Fail(err error) {
	if err == nil || r.Err != nil {
		return
	}
	r.Err = err
	r.Error = err.Error()
}

// Failed reports whether the category was aborted.
func (r *CategoryReport) Failed() bool {
	return r.Err != nil || r.Error != ""
}

// RunReport holds the overall result of a crawl.
type RunReport struct {
	ID           string           `json:"id"`
	HomeURL      string           `json:"home_url"`
	OutputDir    string           `json:"output_dir"`
	Categories   []CategoryReport `json:"categories"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	RequestCount int              `json:"request_count"`
	RetryCount   int              `json:"retry_count"`
	ErrorsByType map[string]int   `json:"errors_by_type,omitempty"`
}

// TotalWritten sums written rows across categories.
func (r *RunReport) TotalWritten() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Written
	}
	return total
}

// TotalSkipped sums skipped products across categories.
func (r *RunReport) TotalSkipped() int {
	total := 0
	for _, c := range r.Categories {
		total += len(c.Skipped)
	}
	return total
}

// FailedCategories returns the reports of aborted categories.
func (r *RunReport) FailedCategories() []CategoryReport {
	var out []CategoryReport
	for _, c := range r.Categories {
		if c.Failed() {
			out = append(out, c)
		}
	}
	return out
}
