package store

import (
	"context"

	"itsmehi/internal/index"
	"itsmehi/internal/journal"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	index.MockIndex
}

func (m *MockStore) SaveConversation(ctx context.Context, entry journal.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) RecentConversations(ctx context.Context, limit int) ([]journal.Entry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]journal.Entry), args.Error(1)
}
