package mocks

import (
	"context"
	"fmt"
	"sync"

	"skyquery/internal/domain"
)

// MockShellSession scripts canned transcripts per command text.
type MockShellSession struct {
	mu          sync.Mutex
	Transcripts map[string]string
	ConnectErr  error
	ExecuteErr  error

	ConnectCalls int
	ExecuteCalls int
	Commands     []string
}

func (m *MockShellSession) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	return m.ConnectErr
}

func (m *MockShellSession) Execute(ctx context.Context, command string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecuteCalls++
	m.Commands = append(m.Commands, command)
	if m.ExecuteErr != nil {
		return "", m.ExecuteErr
	}
	transcript, ok := m.Transcripts[command]
	if !ok {
		return "", fmt.Errorf("unexpected command: %q", command)
	}
	return transcript, nil
}

func (m *MockShellSession) Close() error { return nil }

// MockCacheRepository is an in-memory CacheRepository.
type MockCacheRepository struct {
	mu          sync.Mutex
	Entries     map[string]string
	Quarantined map[string]string

	InvalidatedKeys []string
	WriteErr        error
}

func NewMockCacheRepository() *MockCacheRepository {
	return &MockCacheRepository{
		Entries:     make(map[string]string),
		Quarantined: make(map[string]string),
	}
}

func (m *MockCacheRepository) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Entries[key]
	return ok, nil
}

func (m *MockCacheRepository) Write(ctx context.Context, key string, header []string, transcript string, compress bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	content := transcript
	if len(header) > 0 {
		content = joinTabs(header) + "\n" + transcript
	}
	m.Entries[key] = content
	return nil
}

func (m *MockCacheRepository) Read(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.Entries[key]
	if !ok {
		return "", fmt.Errorf("no cache entry for key %s", key)
	}
	return content, nil
}

func (m *MockCacheRepository) Invalidate(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Entries, key)
	m.InvalidatedKeys = append(m.InvalidatedKeys, key)
	return nil
}

func (m *MockCacheRepository) Quarantine(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Quarantined[key] = m.Entries[key]
	delete(m.Entries, key)
	return "quarantine/" + key, nil
}

func (m *MockCacheRepository) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = make(map[string]string)
	return nil
}

func (m *MockCacheRepository) Location(key string) string { return "mock/" + key }

// MockHistoryRepository records executions in memory.
type MockHistoryRepository struct {
	mu      sync.Mutex
	Records []domain.QueryExecution
	Err     error
}

func (m *MockHistoryRepository) RecordExecution(ctx context.Context, rec domain.QueryExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Records = append(m.Records, rec)
	return nil
}

func joinTabs(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += "\t"
		}
		out += f
	}
	return out
}
