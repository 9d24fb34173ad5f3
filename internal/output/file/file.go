// Package file appends report bundles to JSON-lines history files.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/output"
)

// CompanyPlaceholder in the path is replaced by the slug of each bundle's
// company, giving every company its own history file.
const CompanyPlaceholder = "{company}"

const defaultKeep = 5

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize rotates a history file once appending would take it past
// bytes. 0 (default) disables rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithKeep sets how many rotated generations ({path}.1 .. {path}.n) are
// kept. Default: 5.
func WithKeep(n int) Option {
	return func(o *Output) { o.keep = n }
}

// Output appends one JSON line per report, so scheduled runs build up a
// history that NewSince-style diffing or jq can read back.
type Output struct {
	mu        sync.Mutex
	pattern   string
	verbosity compactor.Verbosity
	maxSize   int64
	keep      int
	files     map[string]*history
}

// history is one open file.
type history struct {
	f    *os.File
	w    *bufio.Writer
	size int64
}

// New creates a file output. Parent directories are created on first
// write. A path without the placeholder is checked for writability now.
func New(path string, verbosity compactor.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		pattern:   path,
		verbosity: verbosity,
		keep:      defaultKeep,
		files:     make(map[string]*history),
	}
	for _, opt := range opts {
		opt(o)
	}
	if !strings.Contains(path, CompanyPlaceholder) {
		if _, err := o.open(path); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Path returns the file a company's reports go to.
func (o *Output) Path(company string) string {
	slug := taxonomy.Slug(company)
	if slug == "" {
		slug = "unnamed"
	}
	return strings.ReplaceAll(o.pattern, CompanyPlaceholder, slug)
}

// Write appends the bundle and flushes, so a crash never leaves half a
// report buffered.
func (o *Output) Write(_ context.Context, bundle *model.ReportBundle) error {
	line, err := json.Marshal(output.FormatBundle(bundle, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	path := o.Path(bundle.Company)
	h, err := o.open(path)
	if err != nil {
		return err
	}
	if o.maxSize > 0 && h.size > 0 && h.size+int64(len(line)) > o.maxSize {
		if h, err = o.rotate(path); err != nil {
			return fmt.Errorf("file output: rotate %s: %w", path, err)
		}
	}
	n, err := h.w.Write(line)
	h.size += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write %s: %w", path, err)
	}
	if err := h.w.Flush(); err != nil {
		return fmt.Errorf("file output: flush %s: %w", path, err)
	}
	return nil
}

// Close flushes and closes every open history file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errList []error
	for path, h := range o.files {
		if err := h.close(); err != nil {
			errList = append(errList, fmt.Errorf("file output: close %s: %w", path, err))
		}
		delete(o.files, path)
	}
	return errors.Join(errList...)
}

// open returns the history for path, opening it in append mode if needed.
func (o *Output) open(path string) (*history, error) {
	if h, ok := o.files[path]; ok {
		return h, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("file output: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file output: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("file output: stat %s: %w", path, err)
	}
	h := &history{f: f, w: bufio.NewWriter(f), size: info.Size()}
	o.files[path] = h
	return h, nil
}

// rotate shifts path.1..path.keep-1 up one generation, moves path to
// path.1 and reopens path empty. The oldest generation is overwritten.
func (o *Output) rotate(path string) (*history, error) {
	if err := o.files[path].close(); err != nil {
		return nil, err
	}
	delete(o.files, path)

	for i := o.keep - 1; i >= 1; i-- {
		from := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, fmt.Sprintf("%s.%d", path, i+1)); err != nil {
			return nil, err
		}
	}
	if o.keep > 0 {
		if err := os.Rename(path, path+".1"); err != nil {
			return nil, err
		}
	} else if err := os.Truncate(path, 0); err != nil {
		return nil, err
	}
	return o.open(path)
}

func (h *history) close() error {
	if err := h.w.Flush(); err != nil {
		h.f.Close()
		return err
	}
	return h.f.Close()
}
