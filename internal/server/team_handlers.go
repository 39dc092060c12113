package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"storeadmin/internal/logging"
)

type teamMember struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.Accounts.ListVerified(r.Context())
	if err != nil {
		logging.Error(s.Logger, "list team failed", err, "request_id", middleware.GetReqID(r.Context()))
		writeMessage(w, http.StatusInternalServerError, "Failed to load team")
		return
	}

	members := make([]teamMember, 0, len(accounts))
	for _, a := range accounts {
		members = append(members, teamMember{ID: a.ID, Name: a.Name, Email: a.Email, CreatedAt: a.CreatedAt})
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
