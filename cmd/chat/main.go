package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itsmehi/internal/app"
	"itsmehi/internal/httputil"
	"itsmehi/internal/rag"
)

type askRequest struct {
	Question string `json:"question" validate:"required,min=1,max=1000"`
	Language string `json:"language" validate:"omitempty,oneof=es en"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=10"`
}

type source struct {
	ID      string  `json:"id"`
	Score   float32 `json:"score"`
	Preview string  `json:"preview"` // Truncated text preview
}

type askResponse struct {
	Answer   string   `json:"answer"`
	Language string   `json:"language"`
	Sources  []source `json:"sources"`
	Fallback string   `json:"fallback,omitempty"`
	Cached   bool     `json:"cached"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	r := httputil.NewRouter(deps.Log, deps.Config.GenerateTimeout+deps.Config.EmbedTimeout)
	r.Post("/api/ask", askHandler(deps))
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			deps.Log.Warn("graceful shutdown failed", "err", err)
		}
	}()

	deps.Log.Info("chat service listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		deps.Log.Error("server error", "err", err)
	}
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(deps.Log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}

		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(deps.Log, w, err)
			return
		}

		ans := deps.Agent.Ask(r.Context(), rag.Question{
			Text:     req.Question,
			Language: req.Language,
			TopK:     req.TopK,
		})
		if ans.Err != nil {
			// The answer already carries the user-facing message.
			deps.Log.Warn("answered with fallback", "fallback", ans.Fallback, "err", ans.Err)
		}

		httputil.WriteJSON(w, http.StatusOK, askResponse{
			Answer:   ans.Text,
			Language: ans.Language,
			Sources:  buildSources(ans),
			Fallback: string(ans.Fallback),
			Cached:   ans.Cached,
		})
	}
}

// buildSources converts retrieved passages into sources with truncated previews.
func buildSources(ans rag.Answer) []source {
	sources := make([]source, len(ans.Sources))
	for i, h := range ans.Sources {
		sources[i] = source{
			ID:      h.Passage.ID,
			Score:   h.Score,
			Preview: rag.Preview(h.Passage.Text, 150),
		}
	}
	return sources
}
