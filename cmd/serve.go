package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coaching-engine/internal/faults"
	"github.com/sells-group/coaching-engine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only consumption API for the agent layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
			if err := env.Store.Ping(req.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/contractors/{id}", func(r chi.Router) {
			r.Get("/goals/active", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				goals, err := env.Store.ListGoalsByContractor(req.Context(), contractorID, model.GoalStatusActive)
				if err != nil {
					writeError(w, err)
					return
				}
				if goals == nil {
					goals = []model.Goal{}
				}
				writeJSON(w, http.StatusOK, goals)
			})

			r.Get("/checklist/pending", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				items, err := env.Store.ListPendingChecklist(req.Context(), contractorID)
				if err != nil {
					writeError(w, err)
					return
				}
				if items == nil {
					items = []model.ChecklistItem{}
				}
				writeJSON(w, http.StatusOK, items)
			})

			r.Get("/matches/latest", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				match, err := env.Store.LatestMatch(req.Context(), contractorID)
				if err != nil {
					writeError(w, err)
					return
				}
				if match == nil {
					writeJSON(w, http.StatusNotFound, map[string]string{"error": "no matches yet"})
					return
				}
				writeJSON(w, http.StatusOK, match)
			})

			r.Get("/recommendations/partners", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				recs, err := env.Partners.Aggregate(req.Context(), contractorID)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, recs)
			})

			r.Get("/recommendations/timeline", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				pred, err := env.Timeline.NextMilestoneTimeline(req.Context(), contractorID)
				if err != nil {
					writeError(w, err)
					return
				}
				if pred == nil {
					writeJSON(w, http.StatusOK, map[string]string{"status": "insufficient_data"})
					return
				}
				writeJSON(w, http.StatusOK, pred)
			})

			r.Get("/recommendations/content", func(w http.ResponseWriter, req *http.Request) {
				contractorID, ok := pathID(w, req)
				if !ok {
					return
				}
				recs, err := env.Content.Aggregate(req.Context(), contractorID)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, recs)
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func pathID(w http.ResponseWriter, req *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "contractor id must be an integer"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case faults.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case faults.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
