package tracker

import "github.com/subtensorlabs/taobooks/taostats"

// EventKind is the economic classification of a delegation event.
type EventKind int

const (
	// KindIgnored covers events with no tax consequence for this wallet.
	KindIgnored EventKind = iota

	// KindContractIncome is ALPHA delegated in from the payment contract.
	KindContractIncome

	// KindSale is a user-initiated undelegation swapping ALPHA for TAO.
	KindSale

	// KindExpense is ALPHA undelegated straight to a third party.
	KindExpense
)

// classify buckets one delegation event. The rules are mutually exclusive:
// income requires a DELEGATE transfer from the contract, a sale is an
// UNDELEGATE without transfer metadata, and an expense is an UNDELEGATE
// transferred anywhere but the contract.
func (t *Tracker) classify(e taostats.DelegationEvent) EventKind {
	if e.Nominator != t.opts.Wallet.Coldkey || e.Delegate != t.opts.Wallet.Hotkey {
		return KindIgnored
	}

	switch e.Action {
	case "DELEGATE":
		if e.IsTransfer && e.TransferAddress == t.opts.Wallet.SmartContract {
			return KindContractIncome
		}
	case "UNDELEGATE":
		if !e.IsTransfer {
			return KindSale
		}
		if e.TransferAddress != t.opts.Wallet.SmartContract {
			return KindExpense
		}
	}
	return KindIgnored
}
