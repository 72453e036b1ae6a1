package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mohitkumar/chatflow/logger"
	"go.uber.org/zap"
)

const HTTP = "http"

type HttpActionConfig struct {
	Name              string `mapstructure:"name"`
	Url               string `mapstructure:"url"`
	Method            string `mapstructure:"method"`
	TimeoutSeconds    int    `mapstructure:"timeout-seconds"`
	RetryCount        int    `mapstructure:"retry-count"`
	RetryAfterSeconds int    `mapstructure:"retry-after-seconds"`
	OnFailure         string `mapstructure:"on-failure"`
}

type httpAction struct {
	url               string
	method            string
	client            *http.Client
	retryCount        int
	retryAfterSeconds int
}

type httpActionRequest struct {
	ContactId string         `json:"contactId"`
	FlowName  string         `json:"flowName"`
	StepId    string         `json:"stepId"`
	Params    map[string]any `json:"params"`
	Variables map[string]any `json:"variables"`
}

type httpActionResponse struct {
	Success      bool           `json:"success"`
	ContextPatch map[string]any `json:"contextPatch"`
}

// NewHttpAction calls a fixed endpoint. With an empty url the endpoint comes from
// params["url"] of the step.
func NewHttpAction(conf HttpActionConfig) *httpAction {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	method := conf.Method
	if method == "" {
		method = http.MethodPost
	}
	return &httpAction{
		url:               conf.Url,
		method:            method,
		client:            &http.Client{Timeout: timeout},
		retryCount:        conf.RetryCount,
		retryAfterSeconds: conf.RetryAfterSeconds,
	}
}

func (h *httpAction) Invoke(ctx context.Context, req Request) (Result, error) {
	url := h.url
	if url == "" {
		url, _ = req.Params["url"].(string)
	}
	if url == "" {
		return Result{}, fmt.Errorf("step %s, url can not be empty", req.StepId)
	}
	body, err := json.Marshal(httpActionRequest{
		ContactId: req.ContactId,
		FlowName:  req.FlowName,
		StepId:    req.StepId,
		Params:    req.Params,
		Variables: req.Snapshot.Variables,
	})
	if err != nil {
		return Result{}, err
	}

	var response httpActionResponse
	call := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, h.method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := h.client.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("action endpoint returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("action endpoint returned %d", resp.StatusCode))
		}
		response = httpActionResponse{}
		if len(data) == 0 {
			response.Success = true
			return nil
		}
		if err := json.Unmarshal(data, &response); err != nil {
			return backoff.Permanent(fmt.Errorf("invalid action response: %w", err))
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Duration(h.retryAfterSeconds)*time.Second), uint64(h.retryCount)), ctx)
	if err := backoff.Retry(call, b); err != nil {
		logger.Error("error in calling http action", zap.String("contact", req.ContactId), zap.String("step", req.StepId), zap.String("url", url), zap.Error(err))
		return Result{}, err
	}
	return Result{Success: response.Success, ContextPatch: response.ContextPatch}, nil
}
