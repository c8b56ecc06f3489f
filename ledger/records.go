package ledger

import "github.com/shopspring/decimal"

// Sale is a processed ALPHA disposal for TAO, with the consumed basis and
// realized gain attached.
type Sale struct {
	SaleID          string
	Timestamp       int64
	BlockNumber     int64
	AlphaQuantity   decimal.Decimal
	TaoReceived     decimal.Decimal
	TaoExpected     decimal.Decimal // received grossed up by slippage
	SlippageTao     decimal.Decimal
	SlippageUSD     decimal.Decimal
	SlippageRatio   decimal.Decimal
	TaoPriceUSD     decimal.Decimal
	USDProceeds     decimal.Decimal
	CostBasisUSD    decimal.Decimal
	RealizedGain    decimal.Decimal
	GainType        GainType
	NetworkFeeTao   decimal.Decimal
	NetworkFeeUSD   decimal.Decimal
	ExtrinsicID     string
	ConsumedLots    []LotConsumption
	CreatedTaoLotID string
	Notes           string
}

// Expense is ALPHA spent directly on a good or service. Category routes the
// journal debit; it stays empty until assigned by hand.
type Expense struct {
	ExpenseID       string
	Timestamp       int64
	BlockNumber     int64
	AlphaQuantity   decimal.Decimal
	Category        string
	TaoReceived     decimal.Decimal
	TaoExpected     decimal.Decimal
	SlippageTao     decimal.Decimal
	SlippageUSD     decimal.Decimal
	SlippageRatio   decimal.Decimal
	TaoPriceUSD     decimal.Decimal
	USDProceeds     decimal.Decimal
	CostBasisUSD    decimal.Decimal
	RealizedGain    decimal.Decimal
	GainType        GainType
	NetworkFeeTao   decimal.Decimal
	NetworkFeeUSD   decimal.Decimal
	ExtrinsicID     string
	TransferAddress string
	ConsumedLots    []LotConsumption
	Notes           string
}

// Transfer is a TAO disposal to the brokerage. FeeCostBasisUSD carries the
// basis consumed by the fee legs folded into the same extrinsic, kept apart
// from the brokerage leg's basis so the journal can post them separately.
type Transfer struct {
	TransferID      string
	Timestamp       int64
	BlockNumber     int64
	TaoAmount       decimal.Decimal // brokerage leg
	TotalOutflowTao decimal.Decimal // brokerage leg plus folded fees
	FeeTao          decimal.Decimal // folded sibling fees
	TaoPriceUSD     decimal.Decimal
	USDProceeds     decimal.Decimal
	CostBasisUSD    decimal.Decimal // brokerage leg basis
	FeeCostBasisUSD decimal.Decimal
	RealizedGain    decimal.Decimal
	GainType        GainType
	TransactionHash string
	ExtrinsicID     string
	ConsumedLots    []LotConsumption
	Notes           string
}

// JournalEntry is one side of a double-entry posting. Exactly one of Debit
// and Credit is nonzero.
type JournalEntry struct {
	Month       string // "YYYY-MM"
	EntryType   string // Income, Sale, Expense, Transfer, Gain
	Account     string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
}

// Accounts maps the journal's posting targets to account names. Categories
// on expenses are used verbatim as debit accounts and are not listed here.
type Accounts struct {
	AlphaAsset       string `yaml:"alpha_asset"`
	TaoAsset         string `yaml:"tao_asset"`
	ContractIncome   string `yaml:"contract_income"`
	StakingIncome    string `yaml:"staking_income"`
	MiningIncome     string `yaml:"mining_income"`
	TransferProceeds string `yaml:"transfer_proceeds"`
	BlockchainFee    string `yaml:"blockchain_fee"`
	ShortTermGain    string `yaml:"short_term_gain"`
	ShortTermLoss    string `yaml:"short_term_loss"`
	LongTermGain     string `yaml:"long_term_gain"`
	LongTermLoss     string `yaml:"long_term_loss"`
}

// DefaultAccounts returns the account names used when no mapping file is
// configured.
func DefaultAccounts() Accounts {
	return Accounts{
		AlphaAsset:       "Alpha-Asset",
		TaoAsset:         "TAO-Asset",
		ContractIncome:   "Contract-Income",
		StakingIncome:    "Staking-Income",
		MiningIncome:     "Mining-Income",
		TransferProceeds: "Transfer-Proceeds",
		BlockchainFee:    "Blockchain-Fee",
		ShortTermGain:    "Short-Term-Capital-Gain",
		ShortTermLoss:    "Short-Term-Capital-Loss",
		LongTermGain:     "Long-Term-Capital-Gain",
		LongTermLoss:     "Long-Term-Capital-Loss",
	}
}

// IncomeAccount returns the income account for a lot source.
func (a Accounts) IncomeAccount(src SourceType) string {
	switch src {
	case SourceStaking:
		return a.StakingIncome
	case SourceMining:
		return a.MiningIncome
	default:
		return a.ContractIncome
	}
}

// GainAccount returns the account to post a net gain bucket to: the gain
// account when net is positive, the loss account when negative.
func (a Accounts) GainAccount(gt GainType, net decimal.Decimal) string {
	gain := net.Sign() >= 0
	if gt == LongTerm {
		if gain {
			return a.LongTermGain
		}
		return a.LongTermLoss
	}
	if gain {
		return a.ShortTermGain
	}
	return a.ShortTermLoss
}
