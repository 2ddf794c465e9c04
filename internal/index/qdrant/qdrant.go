// Package qdrant stores knowledge-base passages in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	qc "github.com/qdrant/go-client/qdrant"

	"itsmehi/internal/embeddings"
	"itsmehi/internal/index"
)

const (
	// DefaultCollection is the collection the knowledge base is seeded into.
	DefaultCollection = "itsmehi_collection"

	defaultGRPCPort = 6334
	restPort        = 6333

	payloadText      = "text"
	payloadSource    = "source"
	payloadPassageID = "passage_id"

	upsertBatchSize = 100
)

// Config holds connection details for a Qdrant deployment.
type Config struct {
	// URL accepts host, host:port or a full URL such as https://xyz.cloud.qdrant.io:6333.
	// The REST port is translated to the gRPC port.
	URL        string
	APIKey     string
	Collection string
}

// Storage is an index.Index backed by Qdrant, using cosine distance.
type Storage struct {
	client     *qc.Client
	collection string
	dimension  int
}

// NewStorage connects to the Qdrant deployment described by cfg.
func NewStorage(cfg Config) (*Storage, error) {
	host, port, useTLS, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, err
	}
	collection := cfg.Collection
	if collection == "" {
		collection = DefaultCollection
	}
	client, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return &Storage{client: client, collection: collection}, nil
}

func (s *Storage) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	if exists {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("inspect collection %s: %w", s.collection, err)
		}
		if err := checkCollectionSize(info, dimension); err != nil {
			return err
		}
		s.dimension = dimension
		return nil
	}
	s.dimension = dimension
	err = s.client.CreateCollection(ctx, &qc.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
			Size:     uint64(dimension),
			Distance: qc.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	return nil
}

// checkCollectionSize compares the collection's unnamed vector size with dimension.
// Collections configured with named vectors report size 0 and are accepted.
func checkCollectionSize(info *qc.CollectionInfo, dimension int) error {
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != 0 && size != uint64(dimension) {
		return fmt.Errorf("%w: collection has %d, want %d", index.ErrDimensionMismatch, size, dimension)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, passages []index.Passage, vectors []embeddings.Vector) error {
	if len(passages) != len(vectors) {
		return index.ErrLengthMismatch
	}
	if len(passages) == 0 {
		return nil
	}
	points := make([]*qc.PointStruct, len(passages))
	for i, p := range passages {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d", index.ErrDimensionMismatch, s.dimension, len(vectors[i]))
		}
		points[i] = &qc.PointStruct{
			Id:      qc.NewID(pointID(p.ID)),
			Vectors: qc.NewVectors(vectors[i]...),
			Payload: map[string]*qc.Value{
				payloadText:      qc.NewValueString(p.Text),
				payloadSource:    qc.NewValueString(p.Source),
				payloadPassageID: qc.NewValueString(p.ID),
			},
		}
	}

	wait := true
	for start := 0; start < len(points); start += upsertBatchSize {
		end := start + upsertBatchSize
		if end > len(points) {
			end = len(points)
		}
		_, err := s.client.Upsert(ctx, &qc.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end, err)
		}
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector embeddings.Vector, k int) ([]index.Hit, error) {
	if len(vector) == 0 {
		return nil, index.ErrEmptyVector
	}
	limit := uint64(index.NormalizeK(k))
	results, err := s.client.Query(ctx, &qc.QueryPoints{
		CollectionName: s.collection,
		Query:          qc.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.collection, err)
	}
	hits := make([]index.Hit, 0, len(results))
	for _, point := range results {
		hits = append(hits, index.Hit{
			Passage: passageFromPayload(point.GetPayload()),
			Score:   point.GetScore(),
		})
	}
	return hits, nil
}

func (s *Storage) List(ctx context.Context, limit int) ([]index.Passage, error) {
	if limit <= 0 {
		limit = 100
	}
	n := uint32(limit)
	points, err := s.client.Scroll(ctx, &qc.ScrollPoints{
		CollectionName: s.collection,
		Limit:          &n,
		WithPayload:    qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", s.collection, err)
	}
	out := make([]index.Passage, 0, len(points))
	for _, p := range points {
		out = append(out, passageFromPayload(p.GetPayload()))
	}
	return out, nil
}

func (s *Storage) Drop(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return fmt.Errorf("delete collection %s: %w", s.collection, err)
	}
	s.dimension = 0
	return nil
}

func (s *Storage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func passageFromPayload(payload map[string]*qc.Value) index.Passage {
	var p index.Passage
	if v, ok := payload[payloadText]; ok {
		p.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadSource]; ok {
		p.Source = v.GetStringValue()
	}
	if v, ok := payload[payloadPassageID]; ok {
		p.ID = v.GetStringValue()
	}
	return p
}

// pointID maps an arbitrary passage ID onto the UUID space Qdrant accepts.
// The mapping is deterministic so re-seeding overwrites existing points.
func pointID(passageID string) string {
	if id, err := uuid.Parse(passageID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("itsmehi:"+passageID)).String()
}

func parseEndpoint(raw string) (host string, port int, useTLS bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "localhost", defaultGRPCPort, false, nil
	}
	if strings.Contains(raw, "://") {
		u, perr := url.Parse(raw)
		if perr != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant url %q: %w", raw, perr)
		}
		useTLS = u.Scheme == "https" || u.Scheme == "grpcs"
		raw = u.Host
	}
	h, p, splitErr := net.SplitHostPort(raw)
	if splitErr != nil {
		// No port present.
		return raw, defaultGRPCPort, useTLS, nil
	}
	port, err = strconv.Atoi(p)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", p, err)
	}
	if port == restPort {
		port = defaultGRPCPort
	}
	return h, port, useTLS, nil
}
