package catalog

import (
	"context"
	"sort"
	"sync"
)

type memStore struct {
	mu         sync.Mutex
	indicators map[string]IndicatorRecord
	configs    map[string]ConfigurationRecord
}

func newMemStore() *memStore {
	return &memStore{indicators: map[string]IndicatorRecord{}, configs: map[string]ConfigurationRecord{}}
}

func (m *memStore) ListIndicators(ctx context.Context, activeOnly bool) ([]IndicatorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []IndicatorRecord
	for _, rec := range m.indicators {
		if activeOnly && !rec.Active {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetIndicators(ctx context.Context, ids []string) ([]IndicatorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []IndicatorRecord
	for _, id := range ids {
		if rec, ok := m.indicators[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) GetIndicator(ctx context.Context, id string) (IndicatorRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.indicators[id]
	if !ok {
		return IndicatorRecord{}, ErrIndicatorNotFound
	}
	return rec, nil
}

func (m *memStore) SaveIndicator(ctx context.Context, rec IndicatorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, existing := range m.indicators {
		if id != rec.ID && existing.Name == rec.Name {
			return ErrDuplicateIndicator
		}
	}
	m.indicators[rec.ID] = rec
	return nil
}

func (m *memStore) DeleteIndicator(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indicators[id]; !ok {
		return ErrIndicatorNotFound
	}
	delete(m.indicators, id)
	return nil
}

func (m *memStore) ListConfigurations(ctx context.Context, activeOnly bool) ([]ConfigurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConfigurationRecord
	for _, rec := range m.configs {
		if activeOnly && !rec.IsActive {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetConfiguration(ctx context.Context, name string) (ConfigurationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.configs[name]
	if !ok {
		return ConfigurationRecord{}, ErrConfigurationNotFound
	}
	return rec, nil
}

func (m *memStore) SaveConfiguration(ctx context.Context, rec ConfigurationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[rec.Name] = rec
	return nil
}

func (m *memStore) DeleteConfiguration(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[name]; !ok {
		return ErrConfigurationNotFound
	}
	delete(m.configs, name)
	return nil
}
