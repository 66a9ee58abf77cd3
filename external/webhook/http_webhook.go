package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/foxseedlab/voicedesk/internal/webhook"
	"github.com/goccy/go-json"
)

const callSavedEvent = "call.saved"

type HTTPSender struct {
	webhookURL string
	client     *http.Client
}

func NewHTTPSender(webhookURL string, client *http.Client) webhook.Sender {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSender{
		webhookURL: webhookURL,
		client:     client,
	}
}

func (s *HTTPSender) SendCallSaved(ctx context.Context, payload webhook.CallSavedPayload) error {
	if s.webhookURL == "" {
		return nil
	}
	if payload.SchemaVersion == "" {
		payload.SchemaVersion = webhook.CallSavedSchemaVersion
	}
	if payload.Event == "" {
		payload.Event = callSavedEvent
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
