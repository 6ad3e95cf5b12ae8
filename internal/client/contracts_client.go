package client

import (
	"context"
	"fmt"

	"github.com/Bouchary/saas-tracker-app-sub001/internal/httpclient"
)

// ContractsClient is a client for the contracts service.
type ContractsClient struct {
	client *httpclient.Client
}

// NewContractsClient creates a new contracts service client.
func NewContractsClient(baseURL string) *ContractsClient {
	return &ContractsClient{
		client: httpclient.NewClient(baseURL),
	}
}

// CreateContractResponse is the contracts service creation response.
type CreateContractResponse struct {
	ID string `json:"id"`
}

// CreateContract creates a contract record and returns its id.
func (c *ContractsClient) CreateContract(ctx context.Context, cmd *CreateContractCommand) (string, error) {
	var resp CreateContractResponse
	if err := c.client.Post(ctx, "/api/v1/contracts", cmd, &resp); err != nil {
		return "", fmt.Errorf("failed to create contract: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("contracts service returned no contract id")
	}
	return resp.ID, nil
}
