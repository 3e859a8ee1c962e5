package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Swind/go-model-jobs/core"
)

// statsSource is what the admin endpoints read.
type statsSource interface {
	Stats() core.ManagerStats
	SessionStats() []core.SessionStats
	RecentJobs(limit int) []core.JobExecutionRecord
}

type statsResponse struct {
	Manager  core.ManagerStats   `json:"manager"`
	Sessions []core.SessionStats `json:"sessions"`
}

type recentJob struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Session   string  `json:"session"`
	Status    string  `json:"status"`
	DurationS float64 `json:"duration_seconds"`
	Panicked  bool    `json:"panicked,omitempty"`
}

// newAdminRouter serves /metrics from gatherer and the manager snapshots
// under /debug.
func newAdminRouter(src statsSource, gatherer prom.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/debug", func(r chi.Router) {
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, statsResponse{
				Manager:  src.Stats(),
				Sessions: src.SessionStats(),
			})
		})
		r.Get("/jobs", func(w http.ResponseWriter, req *http.Request) {
			limit := 20
			if v := req.URL.Query().Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n < 0 {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
					return
				}
				limit = n
			}
			records := src.RecentJobs(limit)
			out := make([]recentJob, 0, len(records))
			for _, rec := range records {
				out = append(out, recentJob{
					ID:        rec.ID.String(),
					Name:      rec.Name,
					Session:   rec.SessionID,
					Status:    rec.Status.String(),
					DurationS: rec.Duration.Seconds(),
					Panicked:  rec.Panicked,
				})
			}
			writeJSON(w, http.StatusOK, out)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
