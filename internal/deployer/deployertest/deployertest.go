// Package deployertest runs deployments against an in-process simulated chain.
package deployertest

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"

	"github.com/pendergraft/piggyfactory/internal/chains"
	"github.com/pendergraft/piggyfactory/internal/deployer"
)

// Creation code that deploys RuntimeCode, a contract returning 42 for any call
const (
	CreationCode = "0x600a600c600039600a6000f3602a60005260206000f3"
	RuntimeCode  = "0x602a60005260206000f3"
)

// Artifacts is an in-memory artifact source
type Artifacts map[string]*chains.Artifact

// Artifact implements deployer.ArtifactSource
func (a Artifacts) Artifact(name string) (*chains.Artifact, error) {
	artifact, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chains.ErrArtifactNotFound, name)
	}
	return artifact, nil
}

// NewArtifact builds an artifact around the given creation code
func NewArtifact(name, creationCode string) *chains.Artifact {
	return &chains.Artifact{
		Name:  name,
		Chain: "evm",
		EVM: &chains.EVMArtifact{
			SourcePath:       "contracts/" + name + ".sol",
			ABI:              json.RawMessage(`[]`),
			Bytecode:         creationCode,
			DeployedBytecode: RuntimeCode,
			Compiler:         chains.EVMCompiler{Version: "0.8.28+commit.7893614a"},
		},
	}
}

// PiggyBankArtifacts returns artifacts for PiggyBankFactory and PiggyBank
func PiggyBankArtifacts() Artifacts {
	return Artifacts{
		"PiggyBankFactory": NewArtifact("PiggyBankFactory", CreationCode),
		"PiggyBank":        NewArtifact("PiggyBank", CreationCode),
	}
}

// Env is a funded account on a simulated chain that mines a block every
// BlockTime
type Env struct {
	Backend   *simulated.Backend
	Key       *ecdsa.PrivateKey
	From      common.Address
	ChainID   *big.Int
	Artifacts Artifacts
}

// BlockTime is the simulated block interval
const BlockTime = 50 * time.Millisecond

// New starts a simulated chain with a funded deployer account
func New(t testing.TB) *Env {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)

	backend := simulated.NewBackend(types.GenesisAlloc{
		from: {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))},
	})

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(BlockTime)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				backend.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		<-stopped
		_ = backend.Close()
	})

	chainID, err := backend.Client().ChainID(t.Context())
	if err != nil {
		t.Fatalf("reading chain id: %v", err)
	}

	return &Env{
		Backend:   backend,
		Key:       key,
		From:      from,
		ChainID:   chainID,
		Artifacts: PiggyBankArtifacts(),
	}
}

// Client returns a deployer client signing with the funded account
func (e *Env) Client(t testing.TB, opts ...deployer.Option) *deployer.Client {
	t.Helper()
	signer, err := deployer.NewSigner(common.Bytes2Hex(crypto.FromECDSA(e.Key)), e.ChainID)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	opts = append([]deployer.Option{deployer.WithPollInterval(BlockTime / 2)}, opts...)
	return deployer.New(e.Backend.Client(), e.Artifacts, signer, opts...)
}
