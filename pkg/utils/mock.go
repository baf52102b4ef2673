// SPDX-License-Identifier: MIT
package utils

import (
	"errors"
	"sync"
)

var ErrMockClosed = errors.New("mock transport closed")

// MockTransport records every message instead of sending it.
type MockTransport struct {
	mu       sync.Mutex
	messages []any
	closed   bool
}

func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrMockClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.messages...)
}

// Last returns the newest message, or nil.
func (m *MockTransport) Last() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return nil
	}
	return m.messages[len(m.messages)-1]
}
