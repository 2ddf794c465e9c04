package index

import (
	"context"

	"github.com/stretchr/testify/mock"

	"itsmehi/internal/embeddings"
)

// MockIndex is a mock implementation of Index using testify/mock.
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) EnsureCollection(ctx context.Context, dimension int) error {
	args := m.Called(ctx, dimension)
	return args.Error(0)
}

func (m *MockIndex) Upsert(ctx context.Context, passages []Passage, vectors []embeddings.Vector) error {
	args := m.Called(ctx, passages, vectors)
	return args.Error(0)
}

func (m *MockIndex) Search(ctx context.Context, vector embeddings.Vector, k int) ([]Hit, error) {
	args := m.Called(ctx, vector, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Hit), args.Error(1)
}

func (m *MockIndex) List(ctx context.Context, limit int) ([]Passage, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Passage), args.Error(1)
}

func (m *MockIndex) Drop(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIndex) Close() error {
	args := m.Called()
	return args.Error(0)
}
