// Package ignition builds declarative deployment modules and executes them
// against a chain, journaling every deployed future so that re-running a
// module only deploys what is missing.
package ignition

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/pendergraft/piggyfactory/internal/validation"
)

// Module errors
var (
	ErrInvalidModule     = errors.New("invalid module")
	ErrReconciliation    = errors.New("reconciliation failed")
	ErrMissingParameter  = errors.New("missing module parameter")
	ErrUnknownModule     = errors.New("unknown module")
	ErrUnsupportedFuture = errors.New("unsupported future")
)

// Future is a value produced while executing a module
type Future interface {
	ID() string
	module() *Module
}

// ContractFuture is a request to deploy one contract
type ContractFuture struct {
	id           string
	contractName string
	args         []any
	after        []Future
	value        *big.Int
	owner        *Module
}

// ID returns the future ID, <moduleID>#<id>
func (f *ContractFuture) ID() string { return f.id }

// ContractName returns the artifact name to deploy
func (f *ContractFuture) ContractName() string { return f.contractName }

// Args returns the constructor arguments as declared
func (f *ContractFuture) Args() []any { return f.args }

// Value returns the wei sent with the creation transaction, or nil
func (f *ContractFuture) Value() *big.Int { return f.value }

// Dependencies returns the futures this one waits for, from args and After
func (f *ContractFuture) Dependencies() []Future {
	var deps []Future
	for _, a := range f.args {
		if dep, ok := a.(Future); ok {
			deps = append(deps, dep)
		}
	}
	return append(deps, f.after...)
}

func (f *ContractFuture) module() *Module { return f.owner }

// ModuleParameter is a constructor argument resolved at deploy time
type ModuleParameter struct {
	name         string
	defaultValue any
	owner        *Module
}

// ID returns <moduleID>#<name>
func (p *ModuleParameter) ID() string { return p.owner.ID + "#" + p.name }

// Name returns the parameter name
func (p *ModuleParameter) Name() string { return p.name }

// Default returns the default value, nil when the parameter is required
func (p *ModuleParameter) Default() any { return p.defaultValue }

func (p *ModuleParameter) module() *Module { return p.owner }

// Module is a validated deployment recipe
type Module struct {
	ID         string
	Futures    []*ContractFuture
	Results    map[string]*ContractFuture
	Parameters []*ModuleParameter
}

// ContractOption configures a contract future
type ContractOption func(*ContractFuture)

// WithArgs sets constructor arguments. Arguments may be literals, module
// parameters or contract futures (passed as their address).
func WithArgs(args ...any) ContractOption {
	return func(f *ContractFuture) { f.args = args }
}

// WithID overrides the future ID suffix, for deploying one contract twice
func WithID(id string) ContractOption {
	return func(f *ContractFuture) { f.id = id }
}

// After orders the future after others without passing them as arguments
func After(futures ...Future) ContractOption {
	return func(f *ContractFuture) { f.after = append(f.after, futures...) }
}

// WithValue sends wei to a payable constructor
func WithValue(value *big.Int) ContractOption {
	return func(f *ContractFuture) { f.value = value }
}

// ModuleBuilder collects futures while a module definition runs
type ModuleBuilder struct {
	module *Module
	ids    map[string]bool
	errs   []error
}

// Contract requests the deployment of a contract
func (m *ModuleBuilder) Contract(name string, opts ...ContractOption) *ContractFuture {
	f := &ContractFuture{contractName: name, owner: m.module}
	for _, opt := range opts {
		opt(f)
	}
	if f.id == "" {
		f.id = name
	}
	f.id = m.module.ID + "#" + f.id

	if err := validation.ValidateContractName(name); err != nil {
		m.fail("contract %q: %v", name, err)
	}
	if err := validation.ValidateFutureID(f.id); err != nil {
		m.fail("future %q: %v", f.id, err)
	}
	if m.ids[f.id] {
		m.fail("duplicate future ID %q", f.id)
	}
	for _, dep := range f.Dependencies() {
		if dep.module() != m.module {
			m.fail("future %q depends on %q from another module", f.id, dep.ID())
		}
	}
	for _, arg := range f.args {
		if p, ok := arg.(*ModuleParameter); ok && p.owner != m.module {
			m.fail("future %q uses parameter %q from another module", f.id, p.ID())
		}
	}

	m.ids[f.id] = true
	m.module.Futures = append(m.module.Futures, f)
	return f
}

// GetParameter declares a module parameter. A nil default makes it required.
func (m *ModuleBuilder) GetParameter(name string, defaultValue any) *ModuleParameter {
	for _, p := range m.module.Parameters {
		if p.name == name {
			return p
		}
	}
	if err := validation.ValidateContractName(name); err != nil {
		m.fail("parameter %q: %v", name, err)
	}
	p := &ModuleParameter{name: name, defaultValue: defaultValue, owner: m.module}
	m.module.Parameters = append(m.module.Parameters, p)
	return p
}

func (m *ModuleBuilder) fail(format string, args ...any) {
	m.errs = append(m.errs, fmt.Errorf(format, args...))
}

// BuildModule runs a module definition once and validates the result
func BuildModule(id string, define func(m *ModuleBuilder) map[string]Future) (*Module, error) {
	if err := validation.ValidateModuleID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}

	b := &ModuleBuilder{
		module: &Module{ID: id, Results: make(map[string]*ContractFuture)},
		ids:    make(map[string]bool),
	}
	results := define(b)

	for key, r := range results {
		cf, ok := r.(*ContractFuture)
		switch {
		case !ok:
			b.fail("result %q is not a contract future", key)
		case cf.owner != b.module:
			b.fail("result %q belongs to another module", key)
		default:
			b.module.Results[key] = cf
		}
	}
	if len(b.module.Futures) == 0 {
		b.fail("module has no futures")
	}

	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidModule, id, errors.Join(b.errs...))
	}
	return b.module, nil
}

// MustBuildModule is BuildModule for package-level module definitions
func MustBuildModule(id string, define func(m *ModuleBuilder) map[string]Future) *Module {
	m, err := BuildModule(id, define)
	if err != nil {
		panic(err)
	}
	return m
}
