// Package modules holds the ignition modules this project deploys.
package modules

import (
	"github.com/pendergraft/piggyfactory/internal/ignition"
)

// PiggyBankFactoryModule deploys PiggyBankFactory with no constructor
// arguments and exposes it as piggyBankFactory.
var PiggyBankFactoryModule = ignition.MustBuildModule("PiggyBankFactoryModule", func(m *ignition.ModuleBuilder) map[string]ignition.Future {
	piggyBankFactory := m.Contract("PiggyBankFactory")

	return map[string]ignition.Future{"piggyBankFactory": piggyBankFactory}
})
