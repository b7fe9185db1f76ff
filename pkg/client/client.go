// Package client provides a Go client for the piggyfactory deployments API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a deployments API client
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// New creates a new client for the server at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Deployment is a full deployment record
type Deployment struct {
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

// DeploymentSummary is a deployment as returned by list
type DeploymentSummary struct {
	ChainID      int64  `json:"chainId"`
	Address      string `json:"address"`
	ContractName string `json:"contractName"`
	DeploymentID string `json:"deploymentId,omitempty"`
	FutureID     string `json:"futureId,omitempty"`
	Verified     bool   `json:"verified"`
	TxHash       string `json:"txHash,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// ListOptions filters and pages ListDeployments
type ListOptions struct {
	ChainID      int64
	Contract     string
	DeploymentID string
	Verified     *bool
	Limit        int
	Cursor       string
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.ChainID > 0 {
		q.Set("chain_id", strconv.FormatInt(o.ChainID, 10))
	}
	if o.Contract != "" {
		q.Set("contract", o.Contract)
	}
	if o.DeploymentID != "" {
		q.Set("deployment", o.DeploymentID)
	}
	if o.Verified != nil {
		q.Set("verified", strconv.FormatBool(*o.Verified))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Cursor != "" {
		q.Set("cursor", o.Cursor)
	}
	return q
}

// ListDeploymentsResponse is one page of deployments
type ListDeploymentsResponse struct {
	Data       []DeploymentSummary `json:"data"`
	Pagination Pagination          `json:"pagination"`
}

// Pagination contains pagination info
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
	PrevCursor string `json:"prevCursor,omitempty"`
}

// APIError represents an API error response
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListDeployments returns one page of deployments, newest first
func (c *Client) ListDeployments(ctx context.Context, opts ListOptions) (*ListDeploymentsResponse, error) {
	path := "/api/v1/deployments"
	if q := opts.query().Encode(); q != "" {
		path += "?" + q
	}
	var resp ListDeploymentsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAllDeployments follows cursors until every matching deployment is read
func (c *Client) ListAllDeployments(ctx context.Context, opts ListOptions) ([]DeploymentSummary, error) {
	var all []DeploymentSummary
	for {
		page, err := c.ListDeployments(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Data...)
		if !page.Pagination.HasMore || page.Pagination.NextCursor == "" {
			return all, nil
		}
		opts.Cursor = page.Pagination.NextCursor
	}
}

// GetDeployment gets a deployment by chain ID and address
func (c *Client) GetDeployment(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	var resp Deployment
	path := fmt.Sprintf("/api/v1/deployments/%d/%s", chainID, url.PathEscape(address))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks the server's health endpoint
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("server status %q", resp.Status)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return parseError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func parseError(resp *http.Response) error {
	var errResp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Code: "HTTP_ERROR", Message: resp.Status}
	}
	errResp.Error.StatusCode = resp.StatusCode
	return &errResp.Error
}
