package token

import (
	"context"
	"errors"
)

var ErrMissingCredential = errors.New("token response has no credential")

// Issuer hands out a single-use credential for opening one conversation.
type Issuer interface {
	IssueCredential(ctx context.Context, agentTransportID string) (string, error)
}
