package token

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/foxseedlab/voicedesk/internal/token"
	"github.com/goccy/go-json"
)

const maxErrorBodyBytes = 512

type HTTPIssuer struct {
	endpointURL string
	client      *http.Client
}

func NewHTTPIssuer(endpointURL string, client *http.Client) token.Issuer {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPIssuer{endpointURL: endpointURL, client: client}
}

type issueRequest struct {
	AgentID string `json:"agent_id"`
}

type issueResponse struct {
	Credential string `json:"credential"`
	Token      string `json:"token"`
	SignedURL  string `json:"signed_url"`
}

func (r issueResponse) credential() string {
	for _, v := range []string{r.Credential, r.Token, r.SignedURL} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func (i *HTTPIssuer) IssueCredential(ctx context.Context, agentTransportID string) (string, error) {
	b, err := json.Marshal(issueRequest{AgentID: agentTransportID})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.endpointURL, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request credential: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	cred := out.credential()
	if cred == "" {
		return "", token.ErrMissingCredential
	}
	return cred, nil
}
