package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/storage"
)

const factoryAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// mockService implements Service for testing
type mockService struct {
	deployments map[string]*domain.Deployment
	lastFilter  domain.ListFilter
	listErr     error
}

func newMockService() *mockService {
	return &mockService{
		deployments: make(map[string]*domain.Deployment),
	}
}

func (m *mockService) Get(ctx context.Context, chainID int64, address string) (*domain.Deployment, error) {
	if len(address) != 42 {
		return nil, fmt.Errorf("%w: bad length", domain.ErrInvalidAddress)
	}
	if d, ok := m.deployments[fmt.Sprintf("%d/%s", chainID, address)]; ok {
		return d, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockService) List(ctx context.Context, filter domain.ListFilter, pagination domain.PaginationParams) (*domain.ListResult, error) {
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	var deployments []domain.Deployment
	for _, d := range m.deployments {
		deployments = append(deployments, *d)
	}
	return &domain.ListResult{Deployments: deployments, HasMore: true, NextCursor: "next"}, nil
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(svc)
	r.Route("/deployments", func(r chi.Router) {
		h.RegisterReadRoutes(r)
	})
	return r
}

func TestHandler_List(t *testing.T) {
	svc := newMockService()
	svc.deployments["31337/"+factoryAddr] = &domain.Deployment{
		ID:           "deploy-1",
		ChainID:      31337,
		Address:      factoryAddr,
		ContractName: "PiggyBankFactory",
	}
	router := setupRouter(svc)

	req := httptest.NewRequest("GET", "/deployments/?chain_id=31337&contract=PiggyBankFactory&verified=true&deployment=chain-31337", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp DeploymentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, factoryAddr, resp.Data[0].Address)
	assert.Equal(t, int64(31337), resp.Data[0].ChainID)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, "next", resp.Pagination.NextCursor)

	assert.Equal(t, int64(31337), svc.lastFilter.ChainID)
	assert.Equal(t, "PiggyBankFactory", svc.lastFilter.Contract)
	assert.Equal(t, "chain-31337", svc.lastFilter.DeploymentID)
	require.NotNil(t, svc.lastFilter.Verified)
	assert.True(t, *svc.lastFilter.Verified)
}

func TestHandler_ListErrors(t *testing.T) {
	t.Run("bad chain id", func(t *testing.T) {
		router := setupRouter(newMockService())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/?chain_id=mainnet", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad cursor", func(t *testing.T) {
		svc := newMockService()
		svc.listErr = fmt.Errorf("listing deployments: %w", storage.ErrInvalidInput)
		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/?cursor=zzz", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		svc := newMockService()
		svc.listErr = fmt.Errorf("connection reset")
		rec := httptest.NewRecorder()
		setupRouter(svc).ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	})
}

func TestHandler_Get(t *testing.T) {
	svc := newMockService()
	svc.deployments["31337/"+factoryAddr] = &domain.Deployment{
		ID:           "deploy-1",
		ChainID:      31337,
		Address:      factoryAddr,
		ContractName: "PiggyBankFactory",
		Source:       storage.SourceScript,
		Verified:     true,
		VerifiedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
	router := setupRouter(svc)

	t.Run("existing deployment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/31337/"+factoryAddr, nil))

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(31337), resp["chainId"])
		assert.Equal(t, factoryAddr, resp["address"])
		assert.Equal(t, "PiggyBankFactory", resp["contractName"])
		assert.Equal(t, true, resp["verified"])
		assert.Equal(t, "2026-02-01T10:00:00Z", resp["verifiedAt"])
	})

	t.Run("non-existing deployment", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/1/0x0000000000000000000000000000000000000000", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid chain id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/zero/"+factoryAddr, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid address", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/deployments/1/0x1234", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_NoWriteRoutes(t *testing.T) {
	rec := httptest.NewRecorder()
	setupRouter(newMockService()).ServeHTTP(rec, httptest.NewRequest("POST", "/deployments/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
