// Package multi fans a report out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/output"
)

// Multi delivers each bundle to all of its sinks concurrently, so a slow
// webhook does not hold up the stdout report. A failing sink does not stop
// delivery to the others.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi over the given outputs.
func New(outputs ...output.Output) *Multi {
	return &Multi{outputs: outputs}
}

// Write returns once every sink has finished. Errors are joined in sink
// order and tagged with the sink's position.
func (m *Multi) Write(ctx context.Context, bundle *model.ReportBundle) error {
	return m.each(func(o output.Output) error { return o.Write(ctx, bundle) })
}

// Close closes every sink, even after failures.
func (m *Multi) Close() error {
	return m.each(output.Output.Close)
}

func (m *Multi) each(fn func(output.Output) error) error {
	slots := make([]error, len(m.outputs))
	var wg sync.WaitGroup
	for i, o := range m.outputs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(o); err != nil {
				slots[i] = fmt.Errorf("sink %d (%T): %w", i, o, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(slots...)
}
