package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/crewbase/lifecycle-engine/internal/engine"
	"github.com/crewbase/lifecycle-engine/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the fact-ingestion HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		mux := buildMux(env)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func buildMux(env *engineEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /webhook/fact", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ContractorID string     `json:"contractor_id"`
			Fact         model.Fact `json:"fact"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ContractorID == "" {
			writeError(w, http.StatusBadRequest, "contractor_id is required")
			return
		}

		res, err := env.Engine.RecordFact(r.Context(), req.ContractorID, req.Fact)
		if err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, engine.ErrInvalidTransition):
				status = http.StatusConflict
			case errors.Is(err, engine.ErrUnknownContractor):
				status = http.StatusNotFound
			case errors.Is(err, engine.ErrUnknownItemType):
				status = http.StatusUnprocessableEntity
			}
			if status == http.StatusInternalServerError {
				zap.L().Error("record fact failed",
					zap.String("contractor_id", req.ContractorID),
					zap.Error(err))
			}
			writeError(w, status, err.Error())
			return
		}

		// Webhook delivery is best-effort and must not hold the response.
		// The request context dies with the handler, so detach.
		go env.deliver(context.Background(), res.Notifications)

		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("GET /contractors/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		rep, err := env.Engine.Status(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, engine.ErrUnknownContractor) {
				writeError(w, http.StatusNotFound, "contractor not found")
				return
			}
			zap.L().Error("status failed", zap.String("contractor_id", r.PathValue("id")), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
