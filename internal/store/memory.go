package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hejijunhao/statusreport/internal/model"
)

// Memory is an in-process Store. Datasets are deep-copied on save and load.
type Memory struct {
	mu       sync.Mutex
	feedback []model.TrainingFeedback
	datasets map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{datasets: make(map[string][]byte)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SaveFeedback(_ context.Context, entry model.TrainingFeedback) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, entry)
	return nil
}

func (m *Memory) LoadFeedback(_ context.Context, company string) ([]model.TrainingFeedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TrainingFeedback
	for _, f := range m.feedback {
		if f.Company == company {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *Memory) RevokeFeedback(_ context.Context, company, incidentKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for i := range m.feedback {
		f := &m.feedback[i]
		if f.Company == company && f.IncidentKey == incidentKey && f.RevokedAt == nil {
			f.RevokedAt = &now
			n++
		}
	}
	if n == 0 {
		return fmt.Errorf("feedback for %s/%s: %w", company, incidentKey, ErrNotFound)
	}
	return nil
}

func (m *Memory) SaveDataset(_ context.Context, ds *model.CompanyDataset) error {
	b, err := json.Marshal(ds)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.Company] = b
	return nil
}

func (m *Memory) LoadPreviousDataset(_ context.Context, company string) (*model.CompanyDataset, error) {
	m.mu.Lock()
	b, ok := m.datasets[company]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var ds model.CompanyDataset
	if err := json.Unmarshal(b, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &ds, nil
}
