package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/subtensorlabs/taobooks/ledger"
)

// LoadAccounts reads the journal account mapping from a YAML file. Keys
// left out of the file keep their defaults, so a mapping file only needs
// the accounts it renames. An empty path returns the defaults.
func LoadAccounts(path string) (ledger.Accounts, error) {
	accounts := ledger.DefaultAccounts()
	if path == "" {
		return accounts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return accounts, fmt.Errorf("reading accounts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &accounts); err != nil {
		return accounts, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := validateAccounts(accounts); err != nil {
		return accounts, fmt.Errorf("%s: %w", path, err)
	}
	return accounts, nil
}

func validateAccounts(a ledger.Accounts) error {
	named := map[string]string{
		"alpha_asset":       a.AlphaAsset,
		"tao_asset":         a.TaoAsset,
		"contract_income":   a.ContractIncome,
		"staking_income":    a.StakingIncome,
		"mining_income":     a.MiningIncome,
		"transfer_proceeds": a.TransferProceeds,
		"blockchain_fee":    a.BlockchainFee,
		"short_term_gain":   a.ShortTermGain,
		"short_term_loss":   a.ShortTermLoss,
		"long_term_gain":    a.LongTermGain,
		"long_term_loss":    a.LongTermLoss,
	}
	for key, value := range named {
		if value == "" {
			return fmt.Errorf("account %s must not be empty", key)
		}
	}
	return nil
}
