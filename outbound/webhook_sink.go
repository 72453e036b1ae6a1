package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

type webhookPayload struct {
	ContactId    string                      `json:"contactId"`
	Instructions []model.OutboundInstruction `json:"instructions"`
}

// WebhookSink posts instructions to the transport collaborator as JSON.
type WebhookSink struct {
	url        string
	client     *http.Client
	maxElapsed time.Duration
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:        url,
		client:     &http.Client{Timeout: timeout},
		maxElapsed: 30 * time.Second,
	}
}

func (s *WebhookSink) Deliver(ctx context.Context, contactId string, instructions []model.OutboundInstruction) error {
	if len(instructions) == 0 {
		return nil
	}
	body, err := json.Marshal(webhookPayload{ContactId: contactId, Instructions: instructions})
	if err != nil {
		return err
	}
	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("transport returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("transport returned %d", resp.StatusCode))
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.maxElapsed
	if err := backoff.Retry(post, backoff.WithContext(b, ctx)); err != nil {
		logger.Error("error in delivering outbound instructions", zap.String("contact", contactId), zap.Error(err))
		return err
	}
	return nil
}
