package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"itsmehi/internal/app"
	"itsmehi/internal/httputil"
	"itsmehi/internal/journal"
	"itsmehi/internal/queue"
)

func main() {
	deps, err := app.BuildChatlog()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Store.Close()
	defer deps.Conn.Drain()
	deps.Log.Info("chatlog worker starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(ctx, queue.TaskTypeConversation, func(ctx context.Context, task queue.Task) error {
			return handleEntry(ctx, deps.Log, deps.Store, task)
		})
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(ctx, deps.Log, deps.Config.Port)
	})

	// Wait for either to fail
	if err := g.Wait(); err != nil {
		deps.Log.Error("chatlog service stopped", "err", err)
	}
}

// handleEntry persists one journal entry. A returned error makes the queue retry the task.
func handleEntry(ctx context.Context, log *slog.Logger, saver journal.ConversationSaver, task queue.Task) error {
	entry, err := journal.Decode(task)
	if err != nil {
		// Undecodable payloads never succeed; drop them instead of retrying.
		log.Error("dropping malformed entry", "id", task.ID, "err", err)
		return nil
	}
	if err := saver.SaveConversation(ctx, entry); err != nil {
		return fmt.Errorf("save conversation %s: %w", entry.ID, err)
	}
	log.Debug("conversation saved", "id", entry.ID, "language", entry.Language, "fallback", entry.Fallback)
	return nil
}
