// Package domain contains the business logic for deployment records.
package domain

import (
	"encoding/json"
	"time"
)

// Deployment represents a recorded deployment.
type Deployment struct {
	ID              string
	DeploymentID    string
	ModuleID        string
	FutureID        string
	ContractName    string
	Chain           string
	ChainID         int64
	Address         string
	DeployerAddress string
	TxHash          string
	BlockNumber     int64
	Source          string
	ConstructorArgs json.RawMessage
	Verified        bool
	VerifiedAt      time.Time
	CreatedAt       time.Time
}

// RecordRequest is the request to record a new deployment.
type RecordRequest struct {
	DeploymentID    string `json:"deploymentId,omitempty"`
	ModuleID        string `json:"moduleId,omitempty"`
	FutureID        string `json:"futureId,omitempty"`
	Contract        string `json:"contract"`
	ChainID         int64  `json:"chainId"`
	Address         string `json:"address"`
	TxHash          string `json:"txHash,omitempty"`
	DeployerAddress string `json:"deployerAddress,omitempty"`
	BlockNumber     int64  `json:"blockNumber,omitempty"`
	Source          string `json:"source,omitempty"`
	ConstructorArgs []any  `json:"constructorArgs,omitempty"`
}

// ListFilter contains filter options for listing deployments.
type ListFilter struct {
	ChainID      int64
	Contract     string
	DeploymentID string
	Verified     *bool
}

// PaginationParams contains pagination options.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// ListResult contains paginated list results.
type ListResult struct {
	Deployments []Deployment
	HasMore     bool
	NextCursor  string
	PrevCursor  string
}
