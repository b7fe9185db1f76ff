// Package transport provides HTTP request/response types for the deployments domain.
package transport

import (
	"encoding/json"
	"time"

	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
)

// DeploymentListResponse is the response for listing deployments.
type DeploymentListResponse struct {
	Data       []DeploymentItem `json:"data"`
	Pagination Pagination       `json:"pagination"`
}

// DeploymentItem is a deployment in a list.
type DeploymentItem struct {
	ChainID      int64  `json:"chainId"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	DeploymentID string `json:"deploymentId,omitempty"`
	FutureID     string `json:"futureId,omitempty"`
	Verified     bool   `json:"verified"`
	TxHash       string `json:"txHash,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// Pagination provides pagination metadata.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor"`
	PrevCursor string `json:"prevCursor,omitempty"`
}

// DeploymentResponse is the response for getting a deployment.
type DeploymentResponse struct {
	ID              string          `json:"id"`
	DeploymentID    string          `json:"deploymentId,omitempty"`
	ModuleID        string          `json:"moduleId,omitempty"`
	FutureID        string          `json:"futureId,omitempty"`
	ChainID         int64           `json:"chainId"`
	Address         string          `json:"address"`
	ContractName    string          `json:"contractName"`
	DeployerAddress string          `json:"deployerAddress"`
	TxHash          string          `json:"txHash"`
	BlockNumber     int64           `json:"blockNumber"`
	Source          string          `json:"source"`
	ConstructorArgs json.RawMessage `json:"constructorArgs,omitempty"`
	Verified        bool            `json:"verified"`
	VerifiedAt      string          `json:"verifiedAt,omitempty"`
	CreatedAt       string          `json:"createdAt"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toItem(d domain.Deployment) DeploymentItem {
	item := DeploymentItem{
		ChainID:      d.ChainID,
		Address:      d.Address,
		ContractName: d.ContractName,
		DeploymentID: d.DeploymentID,
		FutureID:     d.FutureID,
		Verified:     d.Verified,
		TxHash:       d.TxHash,
	}
	if !d.CreatedAt.IsZero() {
		item.CreatedAt = d.CreatedAt.Format(time.RFC3339)
	}
	return item
}

func toResponse(d *domain.Deployment) DeploymentResponse {
	resp := DeploymentResponse{
		ID:              d.ID,
		DeploymentID:    d.DeploymentID,
		ModuleID:        d.ModuleID,
		FutureID:        d.FutureID,
		ChainID:         d.ChainID,
		Address:         d.Address,
		ContractName:    d.ContractName,
		DeployerAddress: d.DeployerAddress,
		TxHash:          d.TxHash,
		BlockNumber:     d.BlockNumber,
		Source:          d.Source,
		ConstructorArgs: d.ConstructorArgs,
		Verified:        d.Verified,
	}
	if !d.VerifiedAt.IsZero() {
		resp.VerifiedAt = d.VerifiedAt.Format(time.RFC3339)
	}
	if !d.CreatedAt.IsZero() {
		resp.CreatedAt = d.CreatedAt.Format(time.RFC3339)
	}
	return resp
}
