package ignition

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildModule(t *testing.T) {
	m, err := BuildModule("BankModule", func(m *ModuleBuilder) map[string]Future {
		owner := m.GetParameter("owner", nil)
		factory := m.Contract("PiggyBankFactory")
		bank := m.Contract("PiggyBank", WithArgs(factory, owner, 7), WithValue(big.NewInt(1)))
		return map[string]Future{"factory": factory, "bank": bank}
	})
	require.NoError(t, err)

	assert.Equal(t, "BankModule", m.ID)
	require.Len(t, m.Futures, 2)
	assert.Equal(t, "BankModule#PiggyBankFactory", m.Futures[0].ID())
	assert.Equal(t, "BankModule#PiggyBank", m.Futures[1].ID())
	assert.Equal(t, big.NewInt(1), m.Futures[1].Value())
	require.Len(t, m.Parameters, 1)
	assert.Equal(t, "BankModule#owner", m.Parameters[0].ID())
	assert.Nil(t, m.Parameters[0].Default())

	deps := m.Futures[1].Dependencies()
	require.Len(t, deps, 2)
	assert.Equal(t, "BankModule#PiggyBankFactory", deps[0].ID())
	assert.Equal(t, "BankModule#owner", deps[1].ID())

	assert.Same(t, m.Futures[0], m.Results["factory"])
}

func TestBuildModule_WithID(t *testing.T) {
	m, err := BuildModule("Twice", func(m *ModuleBuilder) map[string]Future {
		a := m.Contract("PiggyBank")
		b := m.Contract("PiggyBank", WithID("Second"), After(a))
		return map[string]Future{"a": a, "b": b}
	})
	require.NoError(t, err)
	assert.Equal(t, "Twice#Second", m.Futures[1].ID())
	assert.Equal(t, "PiggyBank", m.Futures[1].ContractName())
	assert.Len(t, m.Futures[1].Dependencies(), 1)
}

func TestBuildModule_GetParameterIsIdempotent(t *testing.T) {
	m, err := BuildModule("Params", func(m *ModuleBuilder) map[string]Future {
		p1 := m.GetParameter("cap", 10)
		p2 := m.GetParameter("cap", 20)
		assert.Same(t, p1, p2)
		return map[string]Future{"bank": m.Contract("PiggyBank", WithArgs(p1))}
	})
	require.NoError(t, err)
	require.Len(t, m.Parameters, 1)
	assert.Equal(t, 10, m.Parameters[0].Default())
}

func TestBuildModule_Invalid(t *testing.T) {
	other := MustBuildModule("Other", func(m *ModuleBuilder) map[string]Future {
		return map[string]Future{"x": m.Contract("PiggyBank")}
	})
	foreign := other.Futures[0]

	tests := []struct {
		name   string
		id     string
		define func(m *ModuleBuilder) map[string]Future
	}{
		{
			name:   "bad module id",
			id:     "bad id",
			define: func(m *ModuleBuilder) map[string]Future { return nil },
		},
		{
			name:   "no futures",
			id:     "Empty",
			define: func(m *ModuleBuilder) map[string]Future { return nil },
		},
		{
			name: "bad contract name",
			id:   "Bad",
			define: func(m *ModuleBuilder) map[string]Future {
				return map[string]Future{"x": m.Contract("1Nope")}
			},
		},
		{
			name: "duplicate future",
			id:   "Dup",
			define: func(m *ModuleBuilder) map[string]Future {
				m.Contract("PiggyBank")
				return map[string]Future{"x": m.Contract("PiggyBank")}
			},
		},
		{
			name: "foreign dependency",
			id:   "Foreign",
			define: func(m *ModuleBuilder) map[string]Future {
				return map[string]Future{"x": m.Contract("PiggyBank", WithArgs(foreign))}
			},
		},
		{
			name: "foreign result",
			id:   "ForeignResult",
			define: func(m *ModuleBuilder) map[string]Future {
				m.Contract("PiggyBank")
				return map[string]Future{"x": foreign}
			},
		},
		{
			name: "parameter as result",
			id:   "ParamResult",
			define: func(m *ModuleBuilder) map[string]Future {
				m.Contract("PiggyBank")
				return map[string]Future{"x": m.GetParameter("p", 1)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildModule(tt.id, tt.define)
			assert.ErrorIs(t, err, ErrInvalidModule)
		})
	}
}

func TestMustBuildModule_Panics(t *testing.T) {
	assert.Panics(t, func() {
		MustBuildModule("Empty", func(m *ModuleBuilder) map[string]Future { return nil })
	})
}
