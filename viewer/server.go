package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// enableRequest is the JSON body for POST /visualizations/enable and
// /visualizations/disable.
type enableRequest struct {
	ConfigID          string `json:"configId"`
	VisualizationType string `json:"visualizationType"`
	ResultsPath       string `json:"resultsPath,omitempty"`
}

// Handler returns the status and control HTTP surface.
func (v *Viewer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"frames":         v.FrameIDs(),
			"visualizations": v.Status(),
		})
	})

	r.Post("/visualizations/enable", func(w http.ResponseWriter, req *http.Request) {
		body, ok := decodeEnable(w, req)
		if !ok {
			return
		}
		var err error
		if body.ResultsPath != "" {
			loaded, lerr := LoadResults(body.ResultsPath)
			if lerr != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": lerr.Error()})
				return
			}
			err = v.Enable(body.ConfigID, body.VisualizationType, loaded)
		} else {
			err = v.Enable(body.ConfigID, body.VisualizationType, nil)
		}
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"enabled": body.ConfigID})
	})

	r.Post("/visualizations/disable", func(w http.ResponseWriter, req *http.Request) {
		body, ok := decodeEnable(w, req)
		if !ok {
			return
		}
		if err := v.Disable(body.ConfigID, body.VisualizationType); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"disabled": body.ConfigID})
	})

	return r
}

// Serve runs the HTTP surface until ctx is canceled.
func (v *Viewer) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           v.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	v.opts.Logger.Info("viewer: http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func decodeEnable(w http.ResponseWriter, req *http.Request) (*enableRequest, bool) {
	var body enableRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body: " + err.Error()})
		return nil, false
	}
	if body.ConfigID == "" || body.VisualizationType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "configId and visualizationType are required"})
		return nil, false
	}
	return &body, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
