package status

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/carbondale-church/archiver"
)

type Provider interface {
	Status() archiver.Status
}

type Server struct {
	p Provider
}

func NewServer(p Provider) *Server {
	return &Server{
		p: p,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.Path("/status").Methods("GET").HandlerFunc(s.handleGetStatus)
	r.Path("/live").Methods("GET").HandlerFunc(s.handleGetLive)
	r.Path("/live/{id}").Methods("GET").HandlerFunc(s.handleGetLiveById)
}

func (s *Server) handleGetStatus(res http.ResponseWriter, req *http.Request) {
	status := s.p.Status()
	if status.LiveState == nil {
		status.LiveState = archiver.LiveState{}
	}
	if err := json.NewEncoder(res).Encode(status); err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGetLive(res http.ResponseWriter, req *http.Request) {
	// Report the IDs of every broadcast that was live as of the last run
	ids := make([]string, 0)
	for id, isLive := range s.p.Status().LiveState {
		if isLive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if err := json.NewEncoder(res).Encode(LiveBroadcasts{BroadcastIds: ids}); err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGetLiveById(res http.ResponseWriter, req *http.Request) {
	// Figure out which broadcast we want to check
	broadcastId, ok := mux.Vars(req)["id"]
	if !ok || broadcastId == "" {
		http.Error(res, "failed to parse 'id' from URL", http.StatusInternalServerError)
		return
	}

	// A broadcast we've never seen is simply not live
	isLive := s.p.Status().LiveState[broadcastId]
	if err := json.NewEncoder(res).Encode(BroadcastLiveState{BroadcastId: broadcastId, IsLive: isLive}); err != nil {
		http.Error(res, err.Error(), http.StatusInternalServerError)
	}
}

type LiveBroadcasts struct {
	BroadcastIds []string `json:"broadcastIds"`
}

type BroadcastLiveState struct {
	BroadcastId string `json:"broadcastId"`
	IsLive      bool   `json:"isLive"`
}
