package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
	"itsmehi/internal/retry"
)

const defaultConcurrency = 4

// ErrNothingToSeed is returned when Seed is given no passages.
var ErrNothingToSeed = errors.New("kb: no passages to seed")

// Seeder embeds passages and writes them to an index.
type Seeder struct {
	log         *slog.Logger
	embedder    embeddings.Embedder
	index       index.Index
	Concurrency int
	Attempts    int
	Backoff     time.Duration
}

func NewSeeder(log *slog.Logger, embedder embeddings.Embedder, idx index.Index) *Seeder {
	return &Seeder{
		log:         log,
		embedder:    embedder,
		index:       idx,
		Concurrency: defaultConcurrency,
		Attempts:    3,
		Backoff:     500 * time.Millisecond,
	}
}

// Seed embeds every passage, creates the collection if needed and upserts the result.
// It returns the number of passages written.
func (s *Seeder) Seed(ctx context.Context, passages []index.Passage) (int, error) {
	if len(passages) == 0 {
		return 0, ErrNothingToSeed
	}

	vectors := make([]embeddings.Vector, len(passages))
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)
	for i := range passages {
		p := passages[i]
		g.Go(func() error {
			return retry.Do(gctx, s.Attempts, s.Backoff, func(ctx context.Context) error {
				vec, err := s.embedder.Embed(ctx, p.Text)
				if err != nil {
					s.log.Warn("embedding failed", "id", p.ID, "err", err)
					return fmt.Errorf("embed %s: %w", p.ID, err)
				}
				vectors[i] = vec
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	dim := s.embedder.Dimensions()
	if dim <= 0 {
		dim = len(vectors[0])
	}
	if err := s.index.EnsureCollection(ctx, dim); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}
	if err := s.index.Upsert(ctx, passages, vectors); err != nil {
		return 0, fmt.Errorf("upsert: %w", err)
	}
	s.log.Info("knowledge base seeded", "passages", len(passages), "dimension", dim)
	return len(passages), nil
}
