package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brandlens/visibility/internal/pipeline"
	"github.com/brandlens/visibility/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for visibility runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env.Store, env.Pipeline),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runRequest is the body of POST /v1/runs.
type runRequest struct {
	PromptID string `json:"prompt_id"`
	Provider string `json:"provider"`
}

// newRouter builds the HTTP API. Runs execute asynchronously under baseCtx,
// which outlives the request; a run keeps going after the webhook caller
// disconnects.
func newRouter(baseCtx context.Context, st store.Store, p *pipeline.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/v1/runs", func(w http.ResponseWriter, req *http.Request) {
		var body runRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		promptID, err := uuid.Parse(body.PromptID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt_id must be a UUID"})
			return
		}
		if body.Provider == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provider is required"})
			return
		}

		// Reject unknown prompts synchronously so the caller gets a 404
		// instead of a silent no-op.
		prompt, err := st.GetPrompt(req.Context(), promptID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "prompt not found"})
			return
		}

		go func() {
			exec, err := p.RunPrompt(baseCtx, prompt, body.Provider)
			if err != nil {
				zap.L().Error("webhook run failed",
					zap.String("prompt_id", prompt.ID.String()),
					zap.String("provider", body.Provider),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("webhook run complete",
				zap.String("prompt_id", prompt.ID.String()),
				zap.String("provider", body.Provider),
				zap.String("status", string(exec.Status)),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "accepted",
			"prompt_id": prompt.ID.String(),
			"provider":  body.Provider,
		})
	})

	r.Get("/v1/orgs/{orgID}/catalog", func(w http.ResponseWriter, req *http.Request) {
		orgID, err := uuid.Parse(chi.URLParam(req, "orgID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "org ID must be a UUID"})
			return
		}
		entries, err := st.ListCatalog(req.Context(), orgID)
		if err != nil {
			zap.L().Error("list catalog", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/v1/orgs/{orgID}/executions", func(w http.ResponseWriter, req *http.Request) {
		orgID, err := uuid.Parse(chi.URLParam(req, "orgID"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "org ID must be a UUID"})
			return
		}
		since := time.Now().Add(-7 * 24 * time.Hour)
		if s := req.URL.Query().Get("since"); s != "" {
			since, err = time.Parse(time.RFC3339, s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC 3339"})
				return
			}
		}
		execs, err := st.ListExecutionsSince(req.Context(), orgID, since)
		if err != nil {
			zap.L().Error("list executions", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
			return
		}
		writeJSON(w, http.StatusOK, execs)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
