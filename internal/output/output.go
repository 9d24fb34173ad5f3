// Package output delivers report bundles to their destinations.
package output

import (
	"context"

	"github.com/hejijunhao/statusreport/internal/model"
)

// Output defines the interface for report destinations. Sinks must not
// modify the bundle.
type Output interface {
	Write(ctx context.Context, bundle *model.ReportBundle) error
	Close() error
}
