package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/dispatcher"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/outbound"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/stretchr/testify/require"
)

type singlePartition struct{}

func (singlePartition) GetPartition(key string) int {
	return 0
}

func newTestServer(t *testing.T) (*httptest.Server, *outbound.RecordingSink) {
	registry, err := action.RegisterBuiltins(action.NewBuilder(), nil).Build()
	require.NoError(t, err)
	service := metadata.NewService(memory.NewMetadataStorage(), registry, 0)
	ledger := memory.NewLedger()
	sink := outbound.NewRecordingSink()
	d := dispatcher.NewDispatcher(memory.NewQueue(), memory.NewDelayQueue(), singlePartition{}, sink, ledger)
	eng := engine.NewEngine(memory.NewContextStore(), ledger, service, registry, nil, d, engine.Options{Sync: true})
	s, err := NewServer(0, eng, service, registry)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler)
	t.Cleanup(ts.Close)
	return ts, sink
}

func call(t *testing.T, ts *httptest.Server, method string, path string, body any, out any) int {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, &buf)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func onboarding() model.FlowDefinition {
	return model.FlowDefinition{
		Name:      "onboarding",
		Version:   1,
		EntryStep: "ASK_NAME",
		Steps: []model.StepDef{
			{Id: "ASK_NAME", Kind: model.STEP_KIND_QUESTION, Template: "What is your name?", Expects: &model.ExpectDef{Type: model.EXPECT_NON_EMPTY_STRING, Variable: "name"}},
			{Id: "DONE", Kind: model.STEP_KIND_SEND, Template: "Nice to meet you {{ name }}", Terminal: true},
		},
		Transitions: []model.TransitionDef{
			{From: "ASK_NAME", To: "DONE", Priority: 1, Condition: model.ConditionDef{Type: model.CONDITION_FLAG, Flag: "name_received"}},
		},
	}
}

func TestServer(t *testing.T) {
	ts, sink := newTestServer(t)

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/flow", onboarding(), nil))
	require.Equal(t, http.StatusConflict, call(t, ts, http.MethodPost, "/flow", onboarding(), nil))

	var def model.FlowDefinition
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/flow/onboarding/1", nil, &def))
	require.Equal(t, "ASK_NAME", def.EntryStep)
	require.Equal(t, http.StatusNotFound, call(t, ts, http.MethodGet, "/flow/billing", nil, nil))

	var out engine.Outcome
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/contact/c1/flow", map[string]any{"name": "onboarding"}, &out))
	require.Equal(t, "ASK_NAME", out.ActiveStep)
	require.Equal(t, http.StatusConflict, call(t, ts, http.MethodPost, "/contact/c1/flow", map[string]any{"name": "onboarding"}, nil))

	var fc model.FlowContext
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/contact/c1/context", nil, &fc))
	require.Equal(t, "ASK_NAME", fc.ActiveStep)

	event := map[string]any{"externalId": "wamid-1", "contactId": "c1", "payload": map[string]any{"text": "Jane"}}
	out = engine.Outcome{}
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/events", event, &out))
	require.True(t, out.Completed)
	require.Equal(t, model.CLASS_FRESH_INPUT, out.Class)

	out = engine.Outcome{}
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/events", event, &out))
	require.Equal(t, model.CLASS_DUPLICATE, out.Class)
	require.Equal(t, []string{"What is your name?", "Nice to meet you Jane"}, sink.Contents("c1"))

	var entry model.LedgerEntry
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/ledger/"+out.EntryId, nil, &entry))
	require.Equal(t, model.STATE_PROCESSED, entry.State)
	require.Equal(t, http.StatusConflict, call(t, ts, http.MethodPost, "/ledger/"+out.EntryId+"/retry", nil, nil))

	require.Equal(t, http.StatusNotFound, call(t, ts, http.MethodGet, "/contact/c1/context", nil, nil))
	require.Equal(t, http.StatusBadRequest, call(t, ts, http.MethodPost, "/events", map[string]any{"externalId": "wamid-2"}, nil))
	require.Equal(t, http.StatusNotFound, call(t, ts, http.MethodPost, "/contact/c1/retry", nil, nil))

	var actions map[string][]string
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodGet, "/actions", nil, &actions))
	require.Contains(t, actions["actions"], action.JAVASCRIPT)
}
