package journal

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockJournal is a mock implementation of Journal using testify/mock.
type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) Record(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockSaver is a mock implementation of ConversationSaver.
type MockSaver struct {
	mock.Mock
}

func (m *MockSaver) SaveConversation(ctx context.Context, entry Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}
