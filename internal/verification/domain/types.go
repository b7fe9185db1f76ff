// Package domain contains the business logic for deployment verification.
package domain

import (
	deployments "github.com/pendergraft/piggyfactory/internal/deployments/domain"
)

// VerifyRequest is the request to verify a recorded deployment.
type VerifyRequest struct {
	ChainID int64
	Address string
	// Libraries maps fully qualified library names to linked addresses
	Libraries map[string]string
}

// VerifyResult is the result of a verification.
type VerifyResult struct {
	Deployment *deployments.Deployment
	Verified   bool
	MatchType  string // "full", "partial", "none"
	Message    string
	// Marked is set when the record was flagged verified by this call
	Marked bool
}
