package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

func (s *Server) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	entryId := mux.Vars(r)["id"]
	entry, err := s.engine.GetEntry(r.Context(), entryId)
	if err != nil {
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

func (s *Server) HandleRetryEntry(w http.ResponseWriter, r *http.Request) {
	entryId := mux.Vars(r)["id"]
	out, err := s.engine.RetryEntry(r.Context(), entryId)
	if err != nil {
		logger.Error("error retrying ledger entry", zap.String("entryId", entryId), zap.Error(err))
	}
	respondWithOutcome(w, out, err)
}
