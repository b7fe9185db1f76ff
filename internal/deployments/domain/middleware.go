package domain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pendergraft/piggyfactory/internal/observability/metrics"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Record(ctx, req)
	m.logger.Info("Record",
		"contract", req.Contract,
		"chain_id", req.ChainID,
		"address", req.Address,
		"future", req.FutureID,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.Get(ctx, chainID, address)
	m.logger.Debug("Get",
		"chain_id", chainID,
		"address", address,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) GetFuture(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error) {
	start := time.Now()
	d, err := m.next.GetFuture(ctx, chainID, deploymentID, futureID)
	m.logger.Debug("GetFuture",
		"chain_id", chainID,
		"deployment", deploymentID,
		"future", futureID,
		"duration", time.Since(start),
		"error", err,
	)
	return d, err
}

func (m *loggingMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	start := time.Now()
	result, err := m.next.List(ctx, filter, pagination)
	count := 0
	if result != nil {
		count = len(result.Deployments)
	}
	m.logger.Debug("List",
		"chain_id", filter.ChainID,
		"contract", filter.Contract,
		"count", count,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (m *loggingMiddleware) UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error {
	start := time.Now()
	err := m.next.UpdateVerificationStatus(ctx, chainID, address, verified)
	m.logger.Info("UpdateVerificationStatus",
		"chain_id", chainID,
		"address", address,
		"verified", verified,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

// MetricsMiddleware returns a service middleware that counts operations.
func MetricsMiddleware() func(Service) Service {
	return func(next Service) Service {
		return &metricsMiddleware{next: next}
	}
}

type metricsMiddleware struct {
	next Service
}

func (m *metricsMiddleware) Record(ctx context.Context, req RecordRequest) (*Deployment, error) {
	d, err := m.next.Record(ctx, req)
	source := req.Source
	if d != nil {
		source = d.Source
	}
	metrics.DeploymentRecord(source, status(err))
	return d, err
}

func (m *metricsMiddleware) Get(ctx context.Context, chainID int64, address string) (*Deployment, error) {
	d, err := m.next.Get(ctx, chainID, address)
	metrics.DeploymentLookup("get", status(err))
	return d, err
}

func (m *metricsMiddleware) GetFuture(ctx context.Context, chainID int64, deploymentID, futureID string) (*Deployment, error) {
	d, err := m.next.GetFuture(ctx, chainID, deploymentID, futureID)
	metrics.DeploymentLookup("get_future", status(err))
	return d, err
}

func (m *metricsMiddleware) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	result, err := m.next.List(ctx, filter, pagination)
	metrics.DeploymentLookup("list", status(err))
	return result, err
}

func (m *metricsMiddleware) UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error {
	err := m.next.UpdateVerificationStatus(ctx, chainID, address, verified)
	metrics.DeploymentVerify(status(err))
	return err
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAddress), errors.Is(err, ErrInvalidChainID), errors.Is(err, ErrInvalidContract):
		return "invalid"
	default:
		return "error"
	}
}
