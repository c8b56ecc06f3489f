package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/subtensorlabs/taobooks/config"
	"github.com/subtensorlabs/taobooks/ledger"
	"github.com/subtensorlabs/taobooks/prices"
	"github.com/subtensorlabs/taobooks/sheets"
	"github.com/subtensorlabs/taobooks/taostats"
	"github.com/subtensorlabs/taobooks/tracker"
)

// newTracker wires the full stack from the environment: settings, logger,
// taostats client, price source, sheet-backed ledger, and account mapping.
func newTracker(globals *Globals) (*tracker.Tracker, error) {
	settings, err := config.Load(globals.Env)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	log := newLogger(globals.Verbose || settings.Debug)

	wallet, err := taostats.New(settings.Taostats.APIKey, log,
		taostats.WithPacing(time.Duration(settings.Taostats.RateLimitSeconds)*time.Second))
	if err != nil {
		return nil, fmt.Errorf("taostats client: %w", err)
	}

	var priceClient prices.Client = wallet
	if settings.PriceSource == "coinmarketcap" {
		priceClient = prices.NewCoinMarketCap(settings.CoinMarketCapAPIKey, log)
	}

	store, err := sheets.NewGoogleStore(settings.Sheets.SpreadsheetID, settings.Sheets.AccessToken, log)
	if err != nil {
		return nil, fmt.Errorf("sheets store: %w", err)
	}

	accounts, err := config.LoadAccounts(settings.AccountsFile)
	if err != nil {
		return nil, err
	}

	emissionSource := ledger.SourceStaking
	if settings.IncomeSource == ledger.SourceMining {
		emissionSource = ledger.SourceMining
	}

	return tracker.New(wallet, priceClient, sheets.NewLedger(store), tracker.Options{
		Wallet: tracker.Wallet{
			Hotkey:        settings.Wallet.Hotkey,
			Coldkey:       settings.Wallet.Coldkey,
			SmartContract: settings.Wallet.SmartContract,
			Brokerage:     settings.Wallet.Brokerage,
			NetUID:        settings.Wallet.NetUID,
		},
		Strategy:       settings.Strategy,
		EmissionSource: emissionSource,
		Accounts:       accounts,
	}, log)
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
