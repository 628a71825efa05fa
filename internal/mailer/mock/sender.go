package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/errdigest/internal/mailer"
)

// MockSender satisfies mailer.Sender for testing and records every message
// it accepts.
type MockSender struct {
	SendFunc func(ctx context.Context, msg mailer.Message) error

	mu   sync.Mutex
	sent []mailer.Message
}

func (m *MockSender) Name() string { return "mock" }

func (m *MockSender) Send(ctx context.Context, msg mailer.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the messages accepted so far.
func (m *MockSender) Sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.sent...)
}

// NewMockSender returns a MockSender that accepts everything.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// NewFailingSender returns a MockSender that always returns the given error.
func NewFailingSender(err error) *MockSender {
	return &MockSender{
		SendFunc: func(context.Context, mailer.Message) error { return err },
	}
}

// Compile-time check that MockSender implements Sender.
var _ mailer.Sender = (*MockSender)(nil)
