package status

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"dynpoll/internal/poller"
	logx "dynpoll/pkg/logx"
)

// Jobs is the part of the poller the router reads and cancels through.
type Jobs interface {
	Snapshot() []poller.JobInfo
	Info(id poller.JobID) (poller.JobInfo, bool)
	Cancel(id poller.JobID) bool
}

type Source struct {
	Jobs    Jobs
	Metrics http.Handler // nil disables /metrics
	Started time.Time
}

type health struct {
	Status string `json:"status"`
	Jobs   int    `json:"jobs"`
	Uptime string `json:"uptime,omitempty"`
}

// Router builds the HTTP handler. It does not need a listener, so tests
// drive it with httptest directly.
func Router(src Source, cfg Config, log logx.Logger) http.Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog(log))
	r.Use(bearerAuth(cfg.Token))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		h := health{Status: "ok"}
		if src.Jobs != nil {
			h.Jobs = len(src.Jobs.Snapshot())
		}
		if !src.Started.IsZero() {
			h.Uptime = time.Since(src.Started).Round(time.Second).String()
		}
		writeJSON(w, http.StatusOK, h)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			jobs := []poller.JobInfo{}
			if src.Jobs != nil {
				jobs = src.Jobs.Snapshot()
			}
			writeJSON(w, http.StatusOK, jobs)
		})
		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := poller.JobID(chi.URLParam(req, "id"))
			if src.Jobs == nil {
				http.NotFound(w, req)
				return
			}
			info, ok := src.Jobs.Info(id)
			if !ok {
				http.NotFound(w, req)
				return
			}
			writeJSON(w, http.StatusOK, info)
		})
		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := poller.JobID(chi.URLParam(req, "id"))
			if src.Jobs == nil || !src.Jobs.Cancel(id) {
				http.NotFound(w, req)
				return
			}
			log.Info("job cancelled over http", logx.String("job", string(id)))
			w.WriteHeader(http.StatusNoContent)
		})
	})

	if src.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", src.Metrics)
	}
	if cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLog(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)),
				logx.String("req_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// bearerAuth accepts either "Authorization: Bearer <token>" or ?token=<token>.
func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(ah[len(p):]) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
