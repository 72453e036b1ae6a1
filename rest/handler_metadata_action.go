package rest

import (
	"net/http"
)

func (s *Server) HandleListActions(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]any{"actions": s.actions.Names()})
}
