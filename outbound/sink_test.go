package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

func TestWebhookSink(t *testing.T) {
	var calls int32
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, time.Second)
	err := sink.Deliver(context.Background(), "c1", []model.OutboundInstruction{
		{Kind: model.INSTRUCTION_SEND, RenderedContent: "hello", CorrelationHint: "i1:WELCOME"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	require.Equal(t, "c1", got.ContactId)
	require.Equal(t, "hello", got.Instructions[0].RenderedContent)

	require.NoError(t, sink.Deliver(context.Background(), "c1", nil))
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestRecordingSink(t *testing.T) {
	sink := NewRecordingSink()
	require.NoError(t, sink.Deliver(context.Background(), "c1", []model.OutboundInstruction{{RenderedContent: "a"}, {RenderedContent: "b"}}))
	require.NoError(t, sink.Deliver(context.Background(), "c2", []model.OutboundInstruction{{RenderedContent: "x"}}))
	require.Equal(t, []string{"a", "b"}, sink.Contents("c1"))
	require.Len(t, sink.Deliveries(), 3)
}
