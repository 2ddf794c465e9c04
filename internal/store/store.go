package store

import (
	"context"
	"errors"

	"itsmehi/internal/index"
	"itsmehi/internal/journal"
)

// ErrConversationNotFound is returned when the conversation log has no entries.
var ErrConversationNotFound = errors.New("conversation not found")

// Store defines the Postgres persistence contract: the pgvector passage index plus the
// conversation log.
type Store interface {
	index.Index
	SaveConversation(ctx context.Context, entry journal.Entry) error
	RecentConversations(ctx context.Context, limit int) ([]journal.Entry, error)
}
