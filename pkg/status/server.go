package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vnykmshr/rowflow/pkg/step"
	"github.com/vnykmshr/rowflow/pkg/trans"
)

// Controller is the run surface the handlers expose. *trans.Trans
// implements it.
type Controller interface {
	Status() trans.Status
	StageStatus(stage string) ([]step.Snapshot, bool)
	Pause()
	Resume()
	StopAll()
	SafeStop()
}

var _ Controller = (*trans.Trans)(nil)

// Config configures the handler.
type Config struct {
	Logger *slog.Logger

	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer
}

type handler struct {
	ctrl Controller
	log  *slog.Logger
}

// NewHandler returns the router serving ctrl.
func NewHandler(ctrl Controller, cfg Config) *mux.Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handler{ctrl: ctrl, log: cfg.Logger}

	r := mux.NewRouter()
	r.Use(h.logging)
	r.Use(h.recovery)

	r.HandleFunc("/status", h.runStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/{stage}", h.stageStatus).Methods(http.MethodGet)
	r.HandleFunc("/pause", h.control("pause", ctrl.Pause)).Methods(http.MethodPost)
	r.HandleFunc("/resume", h.control("resume", ctrl.Resume)).Methods(http.MethodPost)
	r.HandleFunc("/stop", h.control("stop", ctrl.StopAll)).Methods(http.MethodPost)
	r.HandleFunc("/safestop", h.control("safestop", ctrl.SafeStop)).Methods(http.MethodPost)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (h *handler) runStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func (h *handler) stageStatus(w http.ResponseWriter, r *http.Request) {
	stage := mux.Vars(r)["stage"]
	snaps, ok := h.ctrl.StageStatus(stage)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown stage " + stage})
		return
	}
	h.writeJSON(w, http.StatusOK, snaps)
}

func (h *handler) control(action string, fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fn()
		h.log.Info("control request", "action", action)
		h.writeJSON(w, http.StatusAccepted, map[string]string{"action": action})
	}
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("write response", "error", err)
	}
}

func (h *handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("http request", "method", r.Method, "uri", r.RequestURI, "elapsed", time.Since(start))
	})
}

func (h *handler) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.log.Error("handler panicked", "panic", err, "uri", r.RequestURI)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Serve listens on addr until ctx is done, then shuts the server down.
func Serve(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	<-errCh
	return nil
}
