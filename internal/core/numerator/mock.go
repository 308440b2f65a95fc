package numerator

import (
	"context"
	"sync"
)

// MockGenerator is a test implementation of Generator.
// Use in unit tests to avoid database dependencies.
type MockGenerator struct {
	NextFunc func(ctx context.Context, tenantID string, series Series) (int64, error)

	mu       sync.Mutex
	counters map[string]int64
}

// Next implements Generator.
func (m *MockGenerator) Next(ctx context.Context, tenantID string, series Series) (int64, error) {
	if m.NextFunc != nil {
		return m.NextFunc(ctx, tenantID, series)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	key := tenantID + ":" + string(series)
	m.counters[key]++
	return m.counters[key], nil
}

// Ensure compile-time interface compliance.
var _ Generator = (*MockGenerator)(nil)
