package ignition

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/piggyfactory/internal/deployer/deployertest"
	"github.com/pendergraft/piggyfactory/internal/deployments/domain"
	"github.com/pendergraft/piggyfactory/internal/storage"
)

const bankABI = `[{"type":"constructor","stateMutability":"nonpayable","inputs":[{"name":"factory","type":"address"},{"name":"cap","type":"uint256"}]}]`

type testEnv struct {
	chain    *deployertest.Env
	journal  domain.Service
	dir      string
	executor *Executor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	chain := deployertest.New(t)
	bank := deployertest.NewArtifact("PiggyBank", deployertest.CreationCode)
	bank.EVM.ABI = json.RawMessage(bankABI)
	chain.Artifacts["PiggyBank"] = bank

	journal := domain.NewService(store)
	dir := filepath.Join(t.TempDir(), "deployments")
	return &testEnv{
		chain:    chain,
		journal:  journal,
		dir:      dir,
		executor: NewExecutor(chain.Client(t), journal, dir, logger),
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

var bankModule = MustBuildModule("BankModule", func(m *ModuleBuilder) map[string]Future {
	factory := m.Contract("PiggyBankFactory")
	bank := m.Contract("PiggyBank", WithArgs(factory, m.GetParameter("cap", 100)))
	return map[string]Future{"piggyBankFactory": factory, "piggyBank": bank}
})

func TestExecutor_Deploy(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	result, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)

	assert.Equal(t, "chain-1337", result.DeploymentID)
	assert.Equal(t, int64(1337), result.ChainID)
	assert.Equal(t, "BankModule", result.ModuleID)
	require.Len(t, result.Futures, 2)
	for _, f := range result.Futures {
		assert.False(t, f.Reused)
		assert.True(t, common.IsHexAddress(f.Address))
		assert.NotEmpty(t, f.TxHash)
	}
	factory := result.Contracts["piggyBankFactory"]
	bank := result.Contracts["piggyBank"]
	assert.NotEqual(t, factory, bank)

	code, err := env.chain.Backend.Client().CodeAt(ctx, common.HexToAddress(bank), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	recorded, err := env.journal.GetFuture(ctx, 1337, "chain-1337", "BankModule#PiggyBank")
	require.NoError(t, err)
	assert.Equal(t, bank, recorded.Address)
	assert.Equal(t, storage.SourceIgnition, recorded.Source)
	assert.Equal(t, "BankModule", recorded.ModuleID)
	assert.Equal(t, env.chain.From.Hex(), recorded.DeployerAddress)

	var args []any
	require.NoError(t, json.Unmarshal(recorded.ConstructorArgs, &args))
	require.Len(t, args, 2)
	assert.True(t, strings.EqualFold(factory, args[0].(string)))
	assert.Equal(t, float64(100), args[1])

	addresses, err := ReadDeployedAddresses(env.dir, "chain-1337")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"BankModule#PiggyBankFactory": factory,
		"BankModule#PiggyBank":        bank,
	}, addresses)
}

func TestExecutor_DeployIsResumable(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	first, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)

	second, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.Contracts, second.Contracts)
	for _, f := range second.Futures {
		assert.True(t, f.Reused, f.FutureID)
	}

	status, err := env.executor.Status(ctx, "chain-1337", 1337)
	require.NoError(t, err)
	assert.Len(t, status, 2)
}

func TestExecutor_SeparateDeploymentIDs(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	a, err := env.executor.Deploy(ctx, bankModule, DeployOptions{DeploymentID: "staging"})
	require.NoError(t, err)
	b, err := env.executor.Deploy(ctx, bankModule, DeployOptions{DeploymentID: "production"})
	require.NoError(t, err)

	assert.NotEqual(t, a.Contracts["piggyBank"], b.Contracts["piggyBank"])
	assert.False(t, b.Futures[0].Reused)
}

func TestExecutor_ReconciliationFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	_, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)

	changed := MustBuildModule("BankModule", func(m *ModuleBuilder) map[string]Future {
		return map[string]Future{"piggyBankFactory": m.Contract("PiggyBank", WithID("PiggyBankFactory"))}
	})
	_, err = env.executor.Deploy(ctx, changed, DeployOptions{})
	assert.ErrorIs(t, err, ErrReconciliation)
}

func TestExecutor_RedeploysWhenCodeMissing(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	// A journal entry pointing at an empty account, e.g. after a chain reset
	empty := "0x000000000000000000000000000000000000dEaD"
	_, err := env.journal.Record(ctx, domain.RecordRequest{
		DeploymentID: "chain-1337",
		ModuleID:     "BankModule",
		FutureID:     "BankModule#PiggyBankFactory",
		Contract:     "PiggyBankFactory",
		ChainID:      1337,
		Address:      empty,
	})
	require.NoError(t, err)

	result, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)
	assert.False(t, result.Futures[0].Reused)
	assert.NotEqual(t, empty, result.Contracts["piggyBankFactory"])

	recorded, err := env.journal.GetFuture(ctx, 1337, "chain-1337", "BankModule#PiggyBankFactory")
	require.NoError(t, err)
	assert.Equal(t, result.Contracts["piggyBankFactory"], recorded.Address)
}

func TestExecutor_RedeployAtSameAddressClearsVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	// A dev node restart replays the same nonces, so the redeployed factory
	// lands where the journaled one used to be
	nonce, err := env.chain.Backend.Client().PendingNonceAt(ctx, env.chain.From)
	require.NoError(t, err)
	address := crypto.CreateAddress(env.chain.From, nonce).Hex()
	_, err = env.journal.Record(ctx, domain.RecordRequest{
		DeploymentID: "chain-1337",
		ModuleID:     "BankModule",
		FutureID:     "BankModule#PiggyBankFactory",
		Contract:     "PiggyBankFactory",
		ChainID:      1337,
		Address:      address,
		TxHash:       "0x" + strings.Repeat("aa", 32),
	})
	require.NoError(t, err)
	require.NoError(t, env.journal.UpdateVerificationStatus(ctx, 1337, address, true))

	result, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)
	require.False(t, result.Futures[0].Reused)
	require.Equal(t, address, result.Contracts["piggyBankFactory"])

	recorded, err := env.journal.GetFuture(ctx, 1337, "chain-1337", "BankModule#PiggyBankFactory")
	require.NoError(t, err)
	assert.Equal(t, result.Futures[0].TxHash, recorded.TxHash)
	assert.False(t, recorded.Verified)
	assert.True(t, recorded.VerifiedAt.IsZero())
}

func TestExecutor_Parameters(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	required := MustBuildModule("Capped", func(m *ModuleBuilder) map[string]Future {
		factory := m.Contract("PiggyBankFactory")
		return map[string]Future{"bank": m.Contract("PiggyBank", WithArgs(factory, m.GetParameter("cap", nil)))}
	})

	_, err := env.executor.Deploy(ctx, required, DeployOptions{DeploymentID: "missing"})
	assert.ErrorIs(t, err, ErrMissingParameter)

	result, err := env.executor.Deploy(ctx, required, DeployOptions{
		DeploymentID: "provided",
		Parameters:   Parameters{"Capped": {"cap": 5}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Contracts["bank"])
}

func TestExecutor_MergesDeployedAddresses(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	other := MustBuildModule("Other", func(m *ModuleBuilder) map[string]Future {
		return map[string]Future{"factory": m.Contract("PiggyBankFactory")}
	})

	_, err := env.executor.Deploy(ctx, bankModule, DeployOptions{})
	require.NoError(t, err)
	_, err = env.executor.Deploy(ctx, other, DeployOptions{})
	require.NoError(t, err)

	addresses, err := ReadDeployedAddresses(env.dir, "chain-1337")
	require.NoError(t, err)
	assert.Len(t, addresses, 3)
	assert.Contains(t, addresses, "Other#PiggyBankFactory")
}

func TestExecutor_UnknownArtifact(t *testing.T) {
	env := newTestEnv(t)
	ctx := testContext(t)

	m := MustBuildModule("Missing", func(m *ModuleBuilder) map[string]Future {
		return map[string]Future{"x": m.Contract("NotCompiled")}
	})
	_, err := env.executor.Deploy(ctx, m, DeployOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing#NotCompiled")

	_, err = ReadDeployedAddresses(env.dir, "chain-1337")
	assert.True(t, errors.Is(err, os.ErrNotExist), "nothing written on failure")
}
