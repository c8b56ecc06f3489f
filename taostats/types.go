package taostats

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chain amounts arrive as RAO, 1e-9 of a whole token.
const raoPerToken = 9

// rao converts a RAO-denominated decimal to whole tokens.
func rao(v decimal.Decimal) decimal.Decimal {
	return v.Shift(-raoPerToken)
}

// account is the API's address envelope.
type account struct {
	SS58 string `json:"ss58"`
}

// apiTime parses the ISO timestamps the API emits.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// DelegationEvent is a stake movement between a nominator and a delegate:
// DELEGATE stakes ALPHA in, UNDELEGATE removes it. Events flagged as
// transfers move stake to another address instead of swapping it.
type DelegationEvent struct {
	Timestamp       int64
	BlockNumber     int64
	Action          string // DELEGATE or UNDELEGATE
	Alpha           decimal.Decimal
	Tao             decimal.Decimal
	USD             decimal.Decimal
	AlphaPriceInUSD decimal.Decimal
	AlphaPriceInTao decimal.Decimal
	Slippage        *decimal.Decimal // ratio of value lost to pool slippage, nil when not reported
	FeeTao          decimal.Decimal
	ExtrinsicID     string
	Delegate        string
	Nominator       string
	TransferAddress string // destination for stake transfers, empty otherwise
	IsTransfer      bool
}

// Day returns the UTC calendar day the event happened on.
func (e DelegationEvent) Day() string {
	return time.Unix(e.Timestamp, 0).UTC().Format("2006-01-02")
}

// TransferEvent is a plain TAO balance transfer.
type TransferEvent struct {
	Timestamp   int64
	BlockNumber int64
	From        string
	To          string
	AmountTao   decimal.Decimal
	FeeTao      decimal.Decimal
	ExtrinsicID string

	TransactionHash string
}

// BalanceSnapshot is a point-in-time stake balance for a hotkey/coldkey
// pair on one subnet.
type BalanceSnapshot struct {
	Timestamp     int64
	BlockNumber   int64
	AlphaBalance  decimal.Decimal
	TaoEquivalent decimal.Decimal
}

// Day returns the UTC calendar day of the snapshot.
func (b BalanceSnapshot) Day() string {
	return time.Unix(b.Timestamp, 0).UTC().Format("2006-01-02")
}

type delegationItem struct {
	Timestamp       apiTime             `json:"timestamp"`
	BlockNumber     int64               `json:"block_number"`
	Action          string              `json:"action"`
	Amount          decimal.Decimal     `json:"amount"` // TAO in RAO
	Alpha           decimal.Decimal     `json:"alpha"`  // ALPHA in RAO
	USD             decimal.NullDecimal `json:"usd"`
	AlphaPriceInUSD decimal.NullDecimal `json:"alpha_price_in_usd"`
	AlphaPriceInTao decimal.NullDecimal `json:"alpha_price_in_tao"`
	Slippage        decimal.NullDecimal `json:"slippage"`
	Fee             decimal.NullDecimal `json:"fee"` // RAO
	ExtrinsicID     string              `json:"extrinsic_id"`
	Delegate        account             `json:"delegate"`
	Nominator       account             `json:"nominator"`
	TransferAddress *account            `json:"transfer_address"`
	IsTransfer      bool                `json:"is_transfer"`
}

func orZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}

func (d delegationItem) event() DelegationEvent {
	ev := DelegationEvent{
		Timestamp:       d.Timestamp.Unix(),
		BlockNumber:     d.BlockNumber,
		Action:          d.Action,
		Alpha:           rao(d.Alpha),
		Tao:             rao(d.Amount),
		USD:             orZero(d.USD),
		AlphaPriceInUSD: orZero(d.AlphaPriceInUSD),
		AlphaPriceInTao: orZero(d.AlphaPriceInTao),
		FeeTao:          rao(orZero(d.Fee)),
		ExtrinsicID:     d.ExtrinsicID,
		Delegate:        d.Delegate.SS58,
		Nominator:       d.Nominator.SS58,
		IsTransfer:      d.IsTransfer,
	}
	if d.Slippage.Valid {
		s := d.Slippage.Decimal
		ev.Slippage = &s
	}
	if d.TransferAddress != nil {
		ev.TransferAddress = d.TransferAddress.SS58
	}
	return ev
}

type transferItem struct {
	Timestamp   apiTime             `json:"timestamp"`
	BlockNumber int64               `json:"block_number"`
	From        account             `json:"from"`
	To          account             `json:"to"`
	Amount      decimal.Decimal     `json:"amount"` // RAO
	Fee         decimal.NullDecimal `json:"fee"`    // RAO
	ExtrinsicID string              `json:"extrinsic_id"`

	TransactionHash string `json:"transaction_hash"`
}

func (t transferItem) event() TransferEvent {
	return TransferEvent{
		Timestamp:   t.Timestamp.Unix(),
		BlockNumber: t.BlockNumber,
		From:        t.From.SS58,
		To:          t.To.SS58,
		AmountTao:   rao(t.Amount),
		FeeTao:      rao(orZero(t.Fee)),
		ExtrinsicID: t.ExtrinsicID,

		TransactionHash: t.TransactionHash,
	}
}

type balanceItem struct {
	Timestamp    apiTime         `json:"timestamp"`
	BlockNumber  int64           `json:"block_number"`
	Balance      decimal.Decimal `json:"balance"`        // RAO
	BalanceAsTao decimal.Decimal `json:"balance_as_tao"` // RAO
}

func (b balanceItem) snapshot() BalanceSnapshot {
	return BalanceSnapshot{
		Timestamp:     b.Timestamp.Unix(),
		BlockNumber:   b.BlockNumber,
		AlphaBalance:  rao(b.Balance),
		TaoEquivalent: rao(b.BalanceAsTao),
	}
}

type priceItem struct {
	CreatedAt apiTime         `json:"created_at"`
	Price     decimal.Decimal `json:"price"`
}
