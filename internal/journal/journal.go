// Package journal records every question the chatbot answers.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"itsmehi/internal/queue"
)

// Entry is one answered question.
type Entry struct {
	ID       uuid.UUID `json:"id"`
	At       time.Time `json:"at"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Language string    `json:"language"`
	Fallback string    `json:"fallback,omitempty"`
	Sources  []string  `json:"sources,omitempty"`
}

// Journal receives entries after each answer.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

// NewEntry stamps an entry with a fresh ID and the current time.
func NewEntry(question, answer, language, fallback string, sources []string) Entry {
	return Entry{
		ID:       uuid.New(),
		At:       time.Now().UTC(),
		Question: question,
		Answer:   answer,
		Language: language,
		Fallback: fallback,
		Sources:  sources,
	}
}

// NoOp drops every entry.
type NoOp struct{}

func (NoOp) Record(context.Context, Entry) error { return nil }

// ConversationSaver persists entries synchronously.
type ConversationSaver interface {
	SaveConversation(ctx context.Context, entry Entry) error
}

// Store writes entries straight to a ConversationSaver.
type Store struct {
	saver ConversationSaver
}

func NewStore(saver ConversationSaver) *Store {
	return &Store{saver: saver}
}

func (s *Store) Record(ctx context.Context, entry Entry) error {
	return s.saver.SaveConversation(ctx, entry)
}

// Queue publishes entries for the chatlog worker.
type Queue struct {
	q        queue.Queue
	attempts int
	backoff  time.Duration
}

func NewQueue(q queue.Queue) *Queue {
	return &Queue{q: q, attempts: 3, backoff: 100 * time.Millisecond}
}

func (j *Queue) Record(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	task := queue.Task{
		ID:          entry.ID,
		Type:        queue.TaskTypeConversation,
		Payload:     body,
		MaxAttempts: queue.DefaultMaxAttempts,
	}
	return queue.EnqueueWithRetry(ctx, j.q, task, j.attempts, j.backoff)
}

// Decode extracts the entry carried by a task.
func Decode(task queue.Task) (Entry, error) {
	var entry Entry
	if err := json.Unmarshal(task.Payload, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	if entry.ID == uuid.Nil {
		entry.ID = task.ID
	}
	return entry, nil
}
