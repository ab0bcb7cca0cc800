package testutils

import (
	"context"
	"sync"

	"github.com/vincenthz/ThinkMate/pkg/conversation"
	"github.com/vincenthz/ThinkMate/pkg/storage/inmemory"
)

// MockDriver is an in-memory storage driver that records every save attempt
// and can be told to fail or to hold saves until released.
type MockDriver struct {
	*inmemory.Driver

	mu      sync.Mutex
	saveErr error
	gate    chan struct{}
	saves   []*conversation.Conversation
	deletes []string
	started chan string
}

// NewMockDriver creates a new mock driver.
func NewMockDriver() *MockDriver {
	return &MockDriver{
		Driver:  inmemory.NewDriver(),
		started: make(chan string, 256),
	}
}

// Save records the attempt, waits while the driver is blocked, then fails
// with the configured error or stores c.
func (m *MockDriver) Save(ctx context.Context, c *conversation.Conversation) error {
	m.mu.Lock()
	m.saves = append(m.saves, c.Clone())
	gate := m.gate
	m.mu.Unlock()

	select {
	case m.started <- c.ID:
	default:
	}

	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	err := m.saveErr
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return m.Driver.Save(ctx, c)
}

// Delete records the attempt and removes the record.
func (m *MockDriver) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	m.deletes = append(m.deletes, id)
	m.mu.Unlock()
	return m.Driver.Delete(ctx, id)
}

// SetSaveError makes every following Save fail with err; nil restores
// normal behaviour.
func (m *MockDriver) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Block holds every following Save until Unblock is called.
func (m *MockDriver) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Unblock releases held saves.
func (m *MockDriver) Unblock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Started receives the id of each Save as it begins.
func (m *MockDriver) Started() <-chan string {
	return m.started
}

// Saves returns copies of every conversation passed to Save, in order.
func (m *MockDriver) Saves() []*conversation.Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*conversation.Conversation(nil), m.saves...)
}

// SaveCount returns the number of Save calls.
func (m *MockDriver) SaveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

// Deletes returns the ids passed to Delete, in order.
func (m *MockDriver) Deletes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deletes...)
}
