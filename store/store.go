// Package store publishes crawl progress for external dashboards.
package store

import (
	"context"

	"github.com/Wisny97/Projet-1/models"
)

// ReportStore persists run and category reports.
type ReportStore interface {
	SaveCategory(ctx context.Context, runID string, report models.CategoryReport) error
	SaveRun(ctx context.Context, report models.RunReport) error
}
