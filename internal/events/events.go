package events

import (
	"time"
)

// Topic names are versioned the same way the queue payloads are; consumers
// pin both.
const (
	TopicBounty   = "bounties.event.v1"
	TopicIdentity = "identities.event.v1"
	TopicConfig   = "escrow-config.event.v1"
)

// BountyCreatedV1 is published on every accepted deposit.
type BountyCreatedV1 struct {
	Version   string    `json:"version"`
	Platform  string    `json:"platform"`
	Repo      string    `json:"repo"`
	Issue     string    `json:"issue"`
	Depositor string    `json:"depositor"`
	Token     string    `json:"token"`
	Symbol    string    `json:"symbol"`
	Decimals  uint8     `json:"decimals"`
	NetAmount string    `json:"netAmount"`
	Fee       string    `json:"fee"`
	PostedAt  time.Time `json:"postedAt"`
}

// BountyClosedV1 is the status-transition signal for a verified maintainer
// claim.
type BountyClosedV1 struct {
	Version          string   `json:"version"`
	Platform         string   `json:"platform"`
	Repo             string   `json:"repo"`
	Issue            string   `json:"issue"`
	OldStatus        string   `json:"oldStatus"`
	NewStatus        string   `json:"newStatus"`
	MaintainerUserID string   `json:"maintainerUserId"`
	MaintainerWallet string   `json:"maintainerWallet"`
	Contributors     []string `json:"contributors"`
}

// ContributorPaidV1 is published per completed contributor claim.
type ContributorPaidV1 struct {
	Version  string          `json:"version"`
	Platform string          `json:"platform"`
	Repo     string          `json:"repo"`
	Issue    string          `json:"issue"`
	UserID   string          `json:"userId"`
	Wallet   string          `json:"wallet"`
	Payouts  []TokenAmountV1 `json:"payouts"`
}

// BountyReclaimedV1 is published when a depositor recovers their own
// contribution after the cooling-off window.
type BountyReclaimedV1 struct {
	Version   string `json:"version"`
	Platform  string `json:"platform"`
	Repo      string `json:"repo"`
	Issue     string `json:"issue"`
	Depositor string `json:"depositor"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
}

// BountySweptV1 is published when the finance role clears an abandoned
// bounty.
type BountySweptV1 struct {
	Version  string          `json:"version"`
	Platform string          `json:"platform"`
	Repo     string          `json:"repo"`
	Issue    string          `json:"issue"`
	Sweeper  string          `json:"sweeper"`
	Swept    []TokenAmountV1 `json:"swept"`
}

// ConfigChangedV1 is published on every governance configuration write.
type ConfigChangedV1 struct {
	Version string `json:"version"`
	Setting string `json:"setting"`
	Value   string `json:"value"`
	Caller  string `json:"caller"`
}

// IdentityLinkedV1 is published on identity mint and transfer.
type IdentityLinkedV1 struct {
	Version  string `json:"version"`
	Platform string `json:"platform"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Wallet   string `json:"wallet"`
	Nonce    uint64 `json:"nonce"`
	Rebind   bool   `json:"rebind"`
}

type TokenAmountV1 struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}
