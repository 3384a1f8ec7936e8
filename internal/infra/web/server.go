package web

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"multimodal-agent/internal/usecase"
)

type Server struct {
	jobUC  usecase.JobUseCase
	apiKey string
	log    *zerolog.Logger
}

func NewServer(jobUC usecase.JobUseCase, apiKey string, logger *zerolog.Logger) *Server {
	return &Server{jobUC: jobUC, apiKey: apiKey, log: logger}
}

// RegisterRoutes sets up the routing for the job API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	jobsRouter := s.authMiddleware(s.jobsRouter())
	mux.Handle("/api/v1/jobs", jobsRouter)
	mux.Handle("/api/v1/jobs/", jobsRouter)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

// jobsRouter acts as a sub-router for /api/v1/jobs.
//
//	POST /api/v1/jobs                          submit
//	GET  /api/v1/jobs/{id}                     status snapshot
//	POST /api/v1/jobs/{id}/cancel              request cancellation
//	GET  /api/v1/jobs/{id}/artifacts/{key}     artifact bytes
func (s *Server) jobsRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs")
		path = strings.Trim(path, "/")

		if path == "" {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jobSubmitHandler(s.jobUC, s.log)(w, r)
			return
		}

		parts := strings.Split(path, "/")
		switch {
		case len(parts) == 1:
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jobStatusHandler(s.jobUC)(w, r, parts[0])
		case len(parts) == 2 && parts[1] == "cancel":
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jobCancelHandler(s.jobUC)(w, r, parts[0])
		case len(parts) >= 3 && parts[1] == "artifacts":
			if r.Method != http.MethodGet {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			jobArtifactHandler(s.jobUC)(w, r, parts[0], strings.Join(parts[2:], "/"))
		default:
			http.NotFound(w, r)
		}
	})
}
