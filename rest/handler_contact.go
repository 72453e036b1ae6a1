package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

type startFlowRequest struct {
	Name    string `json:"name"`
	Version int    `json:"version"`
}

func (s *Server) HandleStartFlow(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	contactId := mux.Vars(r)["id"]
	var req startFlowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "flow name is required")
		return
	}
	out, err := s.engine.StartFlow(r.Context(), contactId, req.Name, req.Version)
	if err != nil {
		logger.Error("error starting flow", zap.String("contact", contactId), zap.String("flow", req.Name), zap.Error(err))
	}
	respondWithOutcome(w, out, err)
}

func (s *Server) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	contactId := mux.Vars(r)["id"]
	fc, err := s.engine.GetContext(r.Context(), contactId)
	if err != nil {
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, fc)
}

func (s *Server) HandleResetContext(w http.ResponseWriter, r *http.Request) {
	contactId := mux.Vars(r)["id"]
	if err := s.engine.Reset(r.Context(), contactId); err != nil {
		logger.Error("error resetting context", zap.String("contact", contactId), zap.Error(err))
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleRetryContact(w http.ResponseWriter, r *http.Request) {
	contactId := mux.Vars(r)["id"]
	out, err := s.engine.Retry(r.Context(), contactId)
	if err != nil {
		logger.Error("error retrying contact", zap.String("contact", contactId), zap.Error(err))
	}
	respondWithOutcome(w, out, err)
}
