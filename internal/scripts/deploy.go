// Package scripts holds imperative deployment scripts.
package scripts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/pendergraft/piggyfactory/internal/deployer"
)

// ContractName is the contract both deployment paths deploy
const ContractName = "PiggyBankFactory"

// deployedMessage is the key of the success line
const deployedMessage = "Ticket_City contract successfully deployed to"

// Deployment is a contract deployment in flight
type Deployment interface {
	Target() string
	WaitForDeployment(ctx context.Context) error
}

// Deployer starts contract deployments by artifact name
type Deployer interface {
	DeployContract(ctx context.Context, name string, args ...any) (Deployment, error)
}

// DeployPiggyBankFactory deploys PiggyBankFactory, waits for it to be
// confirmed and writes one JSON line with its address to stdout.
func DeployPiggyBankFactory(ctx context.Context, d Deployer, stdout io.Writer) error {
	deployment, err := d.DeployContract(ctx, ContractName)
	if err != nil {
		return err
	}

	if err := deployment.WaitForDeployment(ctx); err != nil {
		return err
	}

	line, err := json.Marshal(map[string]string{deployedMessage: deployment.Target()})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(line))
	return err
}

// Main runs DeployPiggyBankFactory and returns the process exit code. Any
// error is printed to stderr and yields 1.
func Main(ctx context.Context, d Deployer, stdout, stderr io.Writer) int {
	if err := DeployPiggyBankFactory(ctx, d, stdout); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}

// ClientDeployer adapts a deployer.Client to Deployer and remembers every
// contract it confirmed.
type ClientDeployer struct {
	client *deployer.Client

	mu       sync.Mutex
	deployed []*deployer.Contract
}

// FromClient wraps a deployer client
func FromClient(c *deployer.Client) *ClientDeployer {
	return &ClientDeployer{client: c}
}

// DeployContract implements Deployer
func (c *ClientDeployer) DeployContract(ctx context.Context, name string, args ...any) (Deployment, error) {
	contract, err := c.client.DeployContract(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return &clientDeployment{contract: contract, owner: c}, nil
}

// Deployed returns the confirmed contracts, in deployment order
func (c *ClientDeployer) Deployed() []*deployer.Contract {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*deployer.Contract(nil), c.deployed...)
}

type clientDeployment struct {
	contract *deployer.Contract
	owner    *ClientDeployer
}

func (d *clientDeployment) Target() string {
	return d.contract.Target()
}

func (d *clientDeployment) WaitForDeployment(ctx context.Context) error {
	if _, err := d.contract.WaitForDeployment(ctx); err != nil {
		return err
	}
	d.owner.mu.Lock()
	d.owner.deployed = append(d.owner.deployed, d.contract)
	d.owner.mu.Unlock()
	return nil
}
