// Package config loads tracker settings from environment variables and
// .env files, and the journal account mapping from an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/subtensorlabs/taobooks/ledger"
)

// Settings is the application configuration.
type Settings struct {
	Wallet   WalletSettings
	Taostats TaostatsSettings
	Sheets   SheetsSettings

	// CoinMarketCapAPIKey enables the CoinMarketCap price source.
	CoinMarketCapAPIKey string

	// PriceSource selects where TAO quotes come from: "taostats"
	// (default) or "coinmarketcap".
	PriceSource string

	// Strategy picks the lot consumption order for disposals.
	Strategy ledger.Strategy

	// IncomeSource labels lots created by the income pass. Validator
	// wallets use Contract, miner wallets Mining.
	IncomeSource ledger.SourceType

	// AccountsFile points at the YAML journal account mapping. Empty
	// means the built-in defaults.
	AccountsFile string

	Debug bool
}

// WalletSettings identifies the tracked wallet and its counterparties on
// chain. Addresses are SS58-encoded.
type WalletSettings struct {
	// Hotkey is the validator or miner hotkey whose delegations are
	// tracked.
	Hotkey string

	// Coldkey is the payout coldkey that receives income and signs
	// disposals.
	Coldkey string

	// SmartContract is the payment contract address; delegations with
	// this transfer address are classified as contract income.
	SmartContract string

	// Brokerage receives the TAO transfers treated as disposals.
	Brokerage string

	// NetUID is the tracked subnet.
	NetUID int
}

// TaostatsSettings configures the TaoStats API client.
type TaostatsSettings struct {
	APIKey           string
	RateLimitSeconds int
}

// SheetsSettings configures the Google Sheets backend.
type SheetsSettings struct {
	SpreadsheetID string
	AccessToken   string
}

// Load reads settings from the environment, first loading a .env file. An
// explicit path must exist; otherwise a .env in the working directory is
// picked up when present.
func Load(envPath string) (*Settings, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	netuid, err := intEnv("SUBNET_ID", 0)
	if err != nil {
		return nil, err
	}
	rateLimit, err := intEnv("TAOSTATS_RATE_LIMIT_SECONDS", 12)
	if err != nil {
		return nil, err
	}

	strategy, err := ledger.ParseStrategy(envOr("LOT_STRATEGY", "FIFO"))
	if err != nil {
		return nil, fmt.Errorf("LOT_STRATEGY: %w", err)
	}
	source, err := ledger.ParseSourceType(envOr("INCOME_SOURCE", "Contract"))
	if err != nil {
		return nil, fmt.Errorf("INCOME_SOURCE: %w", err)
	}

	priceSource := strings.ToLower(envOr("PRICE_SOURCE", "taostats"))
	switch priceSource {
	case "taostats", "coinmarketcap":
	default:
		return nil, fmt.Errorf("PRICE_SOURCE: unknown source %q", priceSource)
	}

	return &Settings{
		Wallet: WalletSettings{
			Hotkey:        os.Getenv("VALIDATOR_SS58"),
			Coldkey:       os.Getenv("PAYOUT_COLDKEY_SS58"),
			SmartContract: os.Getenv("SMART_CONTRACT_SS58"),
			Brokerage:     os.Getenv("BROKER_SS58"),
			NetUID:        netuid,
		},
		Taostats: TaostatsSettings{
			APIKey:           os.Getenv("TAOSTATS_API_KEY"),
			RateLimitSeconds: rateLimit,
		},
		Sheets: SheetsSettings{
			SpreadsheetID: os.Getenv("TRACKER_SHEET_ID"),
			AccessToken:   os.Getenv("TRACKER_SHEETS_TOKEN"),
		},
		CoinMarketCapAPIKey: os.Getenv("COINMARKETCAP_API_KEY"),
		PriceSource:         priceSource,
		Strategy:            strategy,
		IncomeSource:        source,
		AccountsFile:        os.Getenv("TRACKER_ACCOUNTS_FILE"),
		Debug:               os.Getenv("DEBUG") == "true",
	}, nil
}

// Validate checks that every setting the tracker needs is present and
// reports all missing variables at once.
func (s *Settings) Validate() error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	require("VALIDATOR_SS58", s.Wallet.Hotkey)
	require("PAYOUT_COLDKEY_SS58", s.Wallet.Coldkey)
	require("SMART_CONTRACT_SS58", s.Wallet.SmartContract)
	require("BROKER_SS58", s.Wallet.Brokerage)
	require("TAOSTATS_API_KEY", s.Taostats.APIKey)
	require("TRACKER_SHEET_ID", s.Sheets.SpreadsheetID)
	require("TRACKER_SHEETS_TOKEN", s.Sheets.AccessToken)
	if s.Wallet.NetUID == 0 {
		missing = append(missing, "SUBNET_ID")
	}
	if s.PriceSource == "coinmarketcap" && s.CoinMarketCapAPIKey == "" {
		missing = append(missing, "COINMARKETCAP_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s (check your .env file)", strings.Join(missing, ", "))
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
