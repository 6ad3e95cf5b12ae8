package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/httpclient"
)

// IdentityClient is a client for the identity service.
type IdentityClient struct {
	client *httpclient.Client
}

// NewIdentityClient creates a new identity service client.
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		client: httpclient.NewClient(baseURL),
	}
}

// GetUserRolesResponse is the identity service roles response.
type GetUserRolesResponse struct {
	Roles []string `json:"roles"`
}

// GetUserRoles returns the role names a user holds within an organization.
func (c *IdentityClient) GetUserRoles(ctx context.Context, organizationID, userID string) ([]string, error) {
	path := fmt.Sprintf("/api/v1/users/roles?user_id=%s&organization_id=%s",
		url.QueryEscape(userID), url.QueryEscape(organizationID))

	var resp GetUserRolesResponse
	if err := c.client.Get(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}
	return resp.Roles, nil
}
