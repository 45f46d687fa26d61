package adapters

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseengine/pulse/pkg/source"
)

// LedgerAdapter reads the funding ledger, the authority on money. Amounts
// stay decimal end to end; no float64 ever touches a funding figure.
type LedgerAdapter struct {
	client *Client
}

// NewLedgerAdapter creates an adapter for the ledger at baseURL.
func NewLedgerAdapter(baseURL string) *LedgerAdapter {
	return &LedgerAdapter{client: NewClient(baseURL)}
}

func (a *LedgerAdapter) SourceID() string {
	return "ledger"
}

func (a *LedgerAdapter) SourceType() source.Type {
	return source.TypeSlow
}

type ledgerItem struct {
	InitiativeID   string           `json:"initiative_id" validate:"required"`
	TargetAmount   *decimal.Decimal `json:"target_amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount"`
	FundingOrgs    []string         `json:"funding_orgs"`
	LastPostedAt   time.Time        `json:"last_posted_at" validate:"required"`
}

type ledgerResponse struct {
	Accounts []ledgerItem `json:"accounts" validate:"dive"`
}

// Fetch retrieves the ledger's funding positions. Positions are cumulative
// point-in-time balances, so Since is never forwarded.
func (a *LedgerAdapter) Fetch(ctx context.Context, query source.Query) ([]source.Record, error) {
	var resp ledgerResponse
	params := queryParams(source.Query{EntityIDs: query.EntityIDs})
	if err := a.client.GetJSON(ctx, "/v1/accounts", params, &resp); err != nil {
		return nil, err
	}
	if err := a.client.ValidatePayload(&resp); err != nil {
		return nil, err
	}

	records := make([]source.Record, 0, len(resp.Accounts))
	for _, item := range resp.Accounts {
		records = append(records, source.Record{
			EntityID:        item.InitiativeID,
			ObservedAt:      item.LastPostedAt,
			FundingTarget:   item.TargetAmount,
			FundingReceived: item.ReceivedAmount,
			ParticipantOrgs: item.FundingOrgs,
		})
	}
	return records, nil
}
