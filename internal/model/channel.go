package model

// ChannelStatus is the payment channel lifecycle state.
type ChannelStatus string

const (
	ChannelStatusOpening ChannelStatus = "opening"
	ChannelStatusOpen    ChannelStatus = "open"
	ChannelStatusClosing ChannelStatus = "closing"
	ChannelStatusSettled ChannelStatus = "settled"
)

// Channel is an off-chain payment relationship used to accrue fees and
// settle them in a single on-chain transaction.
type Channel struct {
	ChannelID       string        `json:"channel_id"`
	Participant     string        `json:"participant"`
	Token           string        `json:"token"`
	DepositedAmount string        `json:"deposited_amount"`
	AccruedBalance  string        `json:"accrued_balance"`
	Status          ChannelStatus `json:"status"`
	// Mock marks channels opened without a signing key. Callers must not
	// treat a mock channel as funded.
	Mock         bool   `json:"mock"`
	SettlementTx string `json:"settlement_tx,omitempty"`
}
