package rest

import (
	"encoding/json"
	"net/http"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

func (s *Server) HandleEvent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var event model.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid event")
		return
	}
	out, err := s.engine.Submit(r.Context(), &event)
	if err != nil {
		logger.Error("error handling event", zap.String("contact", event.ContactId), zap.String("externalId", event.ExternalId), zap.Error(err))
	}
	respondWithOutcome(w, out, err)
}

func (s *Server) HandleStructuredReply(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var reply model.StructuredReply
	if err := json.NewDecoder(r.Body).Decode(&reply); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid reply")
		return
	}
	out, err := s.engine.SubmitStructuredReply(r.Context(), reply)
	if err != nil {
		logger.Info("structured reply not applied", zap.String("contact", reply.ContactId), zap.String("externalId", reply.ExternalId), zap.Error(err))
	}
	respondWithOutcome(w, out, err)
}
