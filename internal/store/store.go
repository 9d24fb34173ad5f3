// Package store persists training feedback and per-run dataset snapshots.
package store

import (
	"context"
	"errors"

	"github.com/hejijunhao/statusreport/internal/model"
)

// ErrNotFound is returned when a revoke or lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// FeedbackStore holds human category corrections.
type FeedbackStore interface {
	LoadFeedback(ctx context.Context, company string) ([]model.TrainingFeedback, error)
	SaveFeedback(ctx context.Context, entry model.TrainingFeedback) error
	RevokeFeedback(ctx context.Context, company, incidentKey string) error
}

// DatasetStore holds the latest dataset of each company so later runs can
// report what is new.
type DatasetStore interface {
	// LoadPreviousDataset returns nil, nil when the company has no snapshot.
	LoadPreviousDataset(ctx context.Context, company string) (*model.CompanyDataset, error)
	SaveDataset(ctx context.Context, ds *model.CompanyDataset) error
}

// Store is the full persistence surface used by a run.
type Store interface {
	FeedbackStore
	DatasetStore
	Close() error
}
