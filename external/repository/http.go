package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/foxseedlab/voicedesk/internal/repository"
	"github.com/goccy/go-json"
)

const maxErrorBodyBytes = 512

// HTTPRepository submits call records to the dashboard's persistence endpoint
// as a single multipart/form-data request.
type HTTPRepository struct {
	endpointURL string
	client      *http.Client
}

func NewHTTPRepository(endpointURL string, client *http.Client) repository.Repository {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPRepository{endpointURL: endpointURL, client: client}
}

type saveCallResponse struct {
	ID string `json:"id"`
}

func (r *HTTPRepository) SaveCall(ctx context.Context, record repository.CallRecord) (string, error) {
	body, contentType, err := encodeCallRecord(record)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpointURL, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit call record: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if !isHTTPSuccessStatus(resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("persistence endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out saveCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode persistence response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("persistence response has no id")
	}
	return out.ID, nil
}

func encodeCallRecord(record repository.CallRecord) (*bytes.Buffer, string, error) {
	transcript, err := json.Marshal(transcriptOrEmpty(record.Transcript))
	if err != nil {
		return nil, "", fmt.Errorf("encode transcript: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct {
		name  string
		value string
	}{
		{name: "agent_id", value: record.AgentID},
		{name: "conversation_id", value: record.ConversationID},
		{name: "transcript", value: string(transcript)},
		{name: "duration", value: strconv.FormatInt(record.DurationSeconds, 10)},
		{name: "outcome", value: string(record.Outcome)},
		{name: "status", value: string(record.Status)},
		{name: "phone_number", value: record.PhoneNumber},
	}
	for _, f := range fields {
		if f.value == "" && (f.name == "phone_number" || f.name == "conversation_id") {
			continue
		}
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if rec := record.Recording; rec != nil && len(rec.Data) > 0 {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="recording"; filename=%q`, rec.Filename))
		h.Set("Content-Type", rec.ContentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(rec.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func transcriptOrEmpty(lines []repository.TranscriptLine) []repository.TranscriptLine {
	if lines == nil {
		return []repository.TranscriptLine{}
	}
	return lines
}

func isHTTPSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
