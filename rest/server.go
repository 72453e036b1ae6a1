package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

type ActionNames interface {
	Names() []string
}

type Server struct {
	http.Server
	Port            int
	engine          *engine.Engine
	metadataService *metadata.Service
	actions         ActionNames
}

func NewServer(httpPort int, eng *engine.Engine, metadataService *metadata.Service, actions ActionNames) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		engine:          eng,
		metadataService: metadataService,
		actions:         actions,
		Port:            httpPort,
	}
	s.Handler = s.router()
	return s, nil
}

func (s *Server) router() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/events", s.HandleEvent).Methods(http.MethodPost)
	router.HandleFunc("/replies", s.HandleStructuredReply).Methods(http.MethodPost)

	router.HandleFunc("/flow", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flow/{name}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flow/{name}/{version:[0-9]+}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/actions", s.HandleListActions).Methods(http.MethodGet)

	router.HandleFunc("/contact/{id}/flow", s.HandleStartFlow).Methods(http.MethodPost)
	router.HandleFunc("/contact/{id}/context", s.HandleGetContext).Methods(http.MethodGet)
	router.HandleFunc("/contact/{id}/context", s.HandleResetContext).Methods(http.MethodDelete)
	router.HandleFunc("/contact/{id}/retry", s.HandleRetryContact).Methods(http.MethodPost)

	router.HandleFunc("/ledger/{id}", s.HandleGetEntry).Methods(http.MethodGet)
	router.HandleFunc("/ledger/{id}/retry", s.HandleRetryEntry).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	return router
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithOutcome writes the outcome of an event. Failures of the flow itself
// are part of the outcome and do not make the request fail.
func respondWithOutcome(w http.ResponseWriter, out *engine.Outcome, err error) {
	if err != nil && (out == nil || !isFlowFailure(err)) {
		respondWithError(w, statusOf(err), err.Error())
		return
	}
	code := http.StatusOK
	if out.State == model.STATE_QUEUED {
		code = http.StatusAccepted
	}
	respondWithJSON(w, code, out)
}

func isFlowFailure(err error) bool {
	return errors.Is(err, model.ErrStepActionFailed) || errors.Is(err, model.ErrMaxHopExceeded)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNoActiveFlow), errors.Is(err, model.ErrFlowNotFound), errors.Is(err, model.ErrEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrFlowAlreadyActive), errors.Is(err, model.ErrFlowVersionExists),
		errors.Is(err, model.ErrIllegalStateTransition), errors.Is(err, model.ErrFlowNotHalted), errors.Is(err, model.ErrFlowHalted):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
