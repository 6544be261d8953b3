package client

import (
	"context"
	"net/http"
	apperrors "smartpark/pkg/errors"
	"smartpark/pkg/model"
)

// IdentityClient resolves opaque bearer tokens into principals by calling
// the external identity service. Token format and password handling live
// entirely on that side.
type IdentityClient struct {
	httpClient *HttpClient
}

func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		httpClient: NewHttpClient(baseURL),
	}
}

// Verify exchanges a bearer token for the authenticated principal. Invalid
// or expired tokens yield Unauthorized; identity-service outages yield
// Unavailable so callers can distinguish the two.
func (c *IdentityClient) Verify(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, apperrors.Unauthorized("Missing bearer token")
	}

	resp, err := c.httpClient.GETWithHeaders(ctx, "/api/v1/principals/me", map[string]string{
		"Authorization": "Bearer " + token,
	})
	if err != nil {
		return nil, apperrors.Unavailable("Identity service")
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, apperrors.Unauthorized("Invalid or expired token")
	default:
		return nil, apperrors.Unavailable("Identity service")
	}

	var wrapper struct {
		Data model.Principal `json:"data"`
	}
	if err := resp.DecodeJSON(&wrapper); err != nil {
		return nil, apperrors.Internal("Failed to decode principal", err)
	}

	if wrapper.Data.ID == "" || (wrapper.Data.Role != model.RoleUser && wrapper.Data.Role != model.RoleAdmin) {
		return nil, apperrors.Unauthorized("Malformed principal")
	}

	return &wrapper.Data, nil
}
