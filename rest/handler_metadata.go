package rest

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
)

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var def model.FlowDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid flow definition")
		return
	}
	err := s.metadataService.ValidateFlow(def)
	if err != nil {
		logger.Error("error validating flow", zap.String("flow", def.Name), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	err = s.metadataService.SaveFlow(r.Context(), def)
	if err != nil {
		logger.Error("error creating flow", zap.String("flow", def.Name), zap.Error(err))
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	respondOK(w, map[string]any{"created": true, "name": def.Name, "version": def.Version})
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	flowName := vars["name"]
	var (
		def *model.FlowDefinition
		err error
	)
	if v, ok := vars["version"]; ok {
		version, convErr := strconv.Atoi(v)
		if convErr != nil {
			respondWithError(w, http.StatusBadRequest, "invalid version")
			return
		}
		def, err = s.metadataService.GetFlowDefinition(r.Context(), flowName, version)
	} else {
		def, err = s.metadataService.GetLatestFlowDefinition(r.Context(), flowName)
	}
	if err != nil {
		logger.Info("flow does not exist", zap.String("name", flowName), zap.Error(err))
		respondWithError(w, statusOf(err), "flow does not exist")
		return
	}
	respondWithJSON(w, http.StatusOK, def)
}
