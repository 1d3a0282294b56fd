package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golden-vcr/auth"
	"github.com/golden-vcr/server-common/entry"
	"github.com/gorilla/mux"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/livestate"
)

type Runner interface {
	Run(ctx context.Context, now time.Time) (*archiver.RunSummary, error)
}

type Server struct {
	r   Runner
	now func() time.Time
}

func NewServer(r Runner) *Server {
	return &Server{
		r:   r,
		now: time.Now,
	}
}

func (s *Server) RegisterRoutes(c auth.Client, r *mux.Router) {
	// Require broadcaster access for all admin routes
	r.Use(func(next http.Handler) http.Handler {
		return auth.RequireAccess(c, auth.RoleBroadcaster, next)
	})

	// POST /run performs an archiver run immediately, without waiting for the next
	// scheduled one
	r.Path("/run").Methods("POST").HandlerFunc(s.handleRun)
}

func (s *Server) handleRun(res http.ResponseWriter, req *http.Request) {
	summary, err := s.r.Run(req.Context(), s.now())
	if err != nil {
		// Return 409 if another process holds the state lock; 500 for anything else
		if errors.Is(err, livestate.ErrLockTimeout) {
			http.Error(res, err.Error(), http.StatusConflict)
			return
		}
		http.Error(res, err.Error(), http.StatusInternalServerError)
		return
	}
	entry.Log(req).Info("Triggered run", "runId", summary.RunId, "numDownloads", len(summary.Downloads))
	if err := json.NewEncoder(res).Encode(summary); err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
	}
}
