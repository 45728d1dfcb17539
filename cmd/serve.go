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
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wellsight/ddr-engine/internal/engine"
	"github.com/wellsight/ddr-engine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Hydrate the in-memory retrieval index before taking traffic.
		if err := env.Engine.Index().Rebuild(ctx, env.Store); err != nil {
			return eris.Wrap(err, "rebuild retrieval index")
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildRouter(env.Engine),
		}

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

// buildRouter assembles the HTTP API over the engine.
func buildRouter(e *engine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		status, err := e.Status(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "load status failed")
			return
		}
		writeJSON(w, http.StatusOK, status)
	})

	r.Post("/reports", func(w http.ResponseWriter, req *http.Request) {
		var raw model.RawExtraction
		if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := e.Ingest(req.Context(), raw)
		if err != nil {
			var incomplete *model.IncompleteExtractionError
			if eris.As(err, &incomplete) {
				writeError(w, http.StatusUnprocessableEntity, incomplete.Error())
				return
			}
			zap.L().Error("ingest failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "ingestion failed")
			return
		}
		writeJSON(w, http.StatusCreated, result)
	})

	r.Get("/reports", func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		wells := []string{req.URL.Query().Get("well")}
		if wells[0] == "" {
			var err error
			wells, err = e.Store().ListWells(ctx)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "list wells failed")
				return
			}
		}

		var reports []model.Report
		for _, wellID := range wells {
			rs, err := e.Store().ListReports(ctx, wellID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "list reports failed")
				return
			}
			reports = append(reports, rs...)
		}
		writeJSON(w, http.StatusOK, reports)
	})

	r.Get("/reports/{well}/{date}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "well") + "/" + chi.URLParam(req, "date")
		report, err := e.Store().GetReport(req.Context(), id)
		if err != nil {
			if eris.Is(err, model.ErrReportNotFound) {
				writeError(w, http.StatusNotFound, "report not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "get report failed")
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Get("/reports/{well}/{date}/summary", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "well") + "/" + chi.URLParam(req, "date")
		summary, err := e.Store().GetCurrentSummary(req.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "get summary failed")
			return
		}
		if summary == nil {
			writeError(w, http.StatusNotFound, "no current summary")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/wells/{well}/events", func(w http.ResponseWriter, req *http.Request) {
		events, err := e.Store().ListEvents(req.Context(), chi.URLParam(req, "well"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list events failed")
			return
		}
		writeJSON(w, http.StatusOK, events)
	})

	r.Get("/wells/{well}/anomalies", func(w http.ResponseWriter, req *http.Request) {
		anomalies, err := e.Store().ListAnomalies(req.Context(), chi.URLParam(req, "well"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list anomalies failed")
			return
		}
		writeJSON(w, http.StatusOK, anomalies)
	})

	r.Post("/ask", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}

		answer, err := e.Ask(req.Context(), body.Question)
		if err != nil {
			zap.L().Error("ask failed", zap.String("question", body.Question), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "answer failed")
			return
		}
		writeJSON(w, http.StatusOK, answer)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
