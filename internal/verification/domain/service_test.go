package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/piggyfactory/internal/chains"
	deployments "github.com/pendergraft/piggyfactory/internal/deployments/domain"
)

const testAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// mockJournal implements DeploymentStore for testing
type mockJournal struct {
	deployments map[string]*deployments.Deployment
	verified    map[string]bool
	updateErr   error
}

func newMockJournal() *mockJournal {
	return &mockJournal{
		deployments: make(map[string]*deployments.Deployment),
		verified:    make(map[string]bool),
	}
}

func (m *mockJournal) add(d *deployments.Deployment) {
	m.deployments[d.Address] = d
}

func (m *mockJournal) Get(ctx context.Context, chainID int64, address string) (*deployments.Deployment, error) {
	d, ok := m.deployments[address]
	if !ok || d.ChainID != chainID {
		return nil, deployments.ErrNotFound
	}
	return d, nil
}

func (m *mockJournal) UpdateVerificationStatus(ctx context.Context, chainID int64, address string, verified bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.verified[address] = verified
	return nil
}

type mockArtifacts map[string]*chains.Artifact

func (m mockArtifacts) Artifact(name string) (*chains.Artifact, error) {
	a, ok := m[name]
	if !ok {
		return nil, chains.ErrArtifactNotFound
	}
	return a, nil
}

// mockChain implements chains.Chain for testing
type mockChain struct {
	name         string
	verifyResult *chains.VerifyResult
	verifyErr    error
	lastOpts     chains.VerifyOptions
}

func (m *mockChain) Name() string                                     { return m.name }
func (m *mockChain) DisplayName() string                              { return m.name }
func (m *mockChain) DetectBuilder(dir string) (chains.Builder, error) { return nil, nil }
func (m *mockChain) Builders() []chains.Builder                       { return nil }

func (m *mockChain) GetDeployedBytecode(ctx context.Context, address string) ([]byte, error) {
	return nil, nil
}

func (m *mockChain) VerifyDeployment(ctx context.Context, opts chains.VerifyOptions) (*chains.VerifyResult, error) {
	m.lastOpts = opts
	if m.verifyErr != nil {
		return nil, m.verifyErr
	}
	return m.verifyResult, nil
}

func setup(result *chains.VerifyResult) (*Service, *mockJournal, *mockChain) {
	journal := newMockJournal()
	journal.add(&deployments.Deployment{
		ContractName: "PiggyBankFactory",
		Chain:        "evm",
		ChainID:      31337,
		Address:      testAddress,
	})

	artifacts := mockArtifacts{
		"PiggyBankFactory": {
			Name:  "PiggyBankFactory",
			Chain: "evm",
			EVM:   &chains.EVMArtifact{DeployedBytecode: "0x602a60005260206000f3"},
		},
	}

	chain := &mockChain{name: "evm", verifyResult: result}
	registry := chains.NewRegistry()
	registry.Register(chain)

	return NewService(journal, artifacts, registry), journal, chain
}

func TestVerify_InvalidAddress(t *testing.T) {
	svc, _, _ := setup(nil)

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 1, Address: "invalid-address"})

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrInvalidAddress))
}

func TestVerify_InvalidChainID(t *testing.T) {
	svc, _, _ := setup(nil)

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: -1, Address: testAddress})

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrInvalidChainID))
}

func TestVerify_DeploymentNotFound(t *testing.T) {
	svc, _, _ := setup(nil)

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 1, Address: testAddress})

	assert.Nil(t, result)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestVerify_FullMatchMarksVerified(t *testing.T) {
	svc, journal, chain := setup(&chains.VerifyResult{Match: true, MatchType: "full", Message: "Bytecode matches"})
	libs := map[string]string{"contracts/Math.sol:Math": testAddress}

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress, Libraries: libs})
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.True(t, result.Marked)
	assert.Equal(t, "full", result.MatchType)
	assert.Equal(t, "PiggyBankFactory", result.Deployment.ContractName)
	assert.True(t, journal.verified[testAddress])

	assert.Equal(t, testAddress, chain.lastOpts.Address)
	assert.Equal(t, []byte("0x602a60005260206000f3"), chain.lastOpts.ExpectedCode)
	assert.Equal(t, libs, chain.lastOpts.Libraries)
}

func TestVerify_PartialMatchMarksVerified(t *testing.T) {
	svc, journal, _ := setup(&chains.VerifyResult{Match: true, MatchType: "partial"})

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
	require.NoError(t, err)

	assert.Equal(t, "partial", result.MatchType)
	assert.True(t, journal.verified[testAddress])
}

func TestVerify_MismatchLeavesRecord(t *testing.T) {
	svc, journal, _ := setup(&chains.VerifyResult{Match: false, MatchType: "none", Message: "Bytecode does not match"})

	result, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.False(t, result.Marked)
	assert.Empty(t, journal.verified)
}

func TestVerify_ArtifactErrors(t *testing.T) {
	t.Run("missing artifact", func(t *testing.T) {
		svc, _, _ := setup(nil)
		svc.artifacts = mockArtifacts{}

		_, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
		assert.ErrorIs(t, err, chains.ErrArtifactNotFound)
	})

	t.Run("no deployed bytecode", func(t *testing.T) {
		svc, _, _ := setup(nil)
		svc.artifacts = mockArtifacts{"PiggyBankFactory": {Name: "PiggyBankFactory", EVM: &chains.EVMArtifact{DeployedBytecode: "0x"}}}

		_, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
		assert.ErrorIs(t, err, ErrNoBytecode)
	})
}

func TestVerify_ChainNotRegistered(t *testing.T) {
	svc, _, _ := setup(nil)
	svc.registry = chains.NewRegistry()

	_, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
	assert.ErrorIs(t, err, ErrChainNotFound)
}

func TestVerify_ChainError(t *testing.T) {
	svc, _, chain := setup(nil)
	chain.verifyErr = errors.New("rpc unavailable")

	_, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc unavailable")
}

func TestVerify_UpdateFails(t *testing.T) {
	svc, journal, _ := setup(&chains.VerifyResult{Match: true, MatchType: "full"})
	journal.updateErr = errors.New("database is locked")

	_, err := svc.Verify(context.Background(), VerifyRequest{ChainID: 31337, Address: testAddress})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}
