package indexer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"prophyt/internal/client/sui"
)

// Payload is the decoded body of one event. The set of implementations is closed:
// every EventKind maps to exactly one payload type.
type Payload interface {
	Kind() EventKind
	MarketRef() string
	sealed()
}

type MarketCreated struct {
	MarketID flexString       `json:"market_id"`
	Creator  string           `json:"creator"`
	Question string           `json:"question"`
	EndTime  sui.Uint64String `json:"end_time"`
}

type BetPlaced struct {
	BetID    flexString      `json:"bet_id"`
	MarketID flexString      `json:"market_id"`
	User     string          `json:"user"`
	Position bool            `json:"position"`
	Amount   decimal.Decimal `json:"amount"`
	NftID    flexString      `json:"nft_id"`
}

type MarketResolved struct {
	MarketID         flexString      `json:"market_id"`
	Outcome          bool            `json:"outcome"`
	TotalYieldEarned decimal.Decimal `json:"total_yield_earned"`
}

type WinningsClaimed struct {
	BetID         flexString      `json:"bet_id"`
	User          string          `json:"user"`
	WinningAmount decimal.Decimal `json:"winning_amount"`
	YieldShare    decimal.Decimal `json:"yield_share"`
	NftID         flexString      `json:"nft_id"`
}

type YieldDeposited struct {
	MarketID flexString      `json:"market_id"`
	Amount   decimal.Decimal `json:"amount"`
}

type BetProofNFTMinted struct {
	MarketID    flexString      `json:"market_id"`
	BetID       flexString      `json:"bet_id"`
	NftID       flexString      `json:"nft_id"`
	Owner       string          `json:"owner"`
	Position    bool            `json:"position"`
	BetAmount   decimal.Decimal `json:"bet_amount"`
	BlobAddress string          `json:"blob_address"`
	ImageURL    string          `json:"image_url"`
	ImageBlobID string          `json:"image_blob_id"`
}

type WinningProofNFTMinted struct {
	MarketID         flexString      `json:"market_id"`
	BetID            flexString      `json:"bet_id"`
	NftID            flexString      `json:"nft_id"`
	Owner            string          `json:"owner"`
	WinningAmount    decimal.Decimal `json:"winning_amount"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	BlobAddress      string          `json:"blob_address"`
	ImageURL         string          `json:"image_url"`
	ImageBlobID      string          `json:"image_blob_id"`
}

type NautilusMarketResolved struct {
	MarketID            flexString       `json:"market_id"`
	Outcome             bool             `json:"outcome"`
	SourceData          string           `json:"source_data"`
	ResolutionTimestamp sui.Uint64String `json:"resolution_timestamp"`
	EnclaveID           flexString       `json:"enclave_id"`
	BlobAddress         string           `json:"blob_address"`
	ImageURL            string           `json:"image_url"`
	ImageBlobID         string           `json:"image_blob_id"`
}

func (*MarketCreated) Kind() EventKind          { return KindMarketCreated }
func (*BetPlaced) Kind() EventKind              { return KindBetPlaced }
func (*MarketResolved) Kind() EventKind         { return KindMarketResolved }
func (*WinningsClaimed) Kind() EventKind        { return KindWinningsClaimed }
func (*YieldDeposited) Kind() EventKind         { return KindYieldDeposited }
func (*BetProofNFTMinted) Kind() EventKind      { return KindBetProofNFTMinted }
func (*WinningProofNFTMinted) Kind() EventKind  { return KindWinningProofNFTMinted }
func (*NautilusMarketResolved) Kind() EventKind { return KindNautilusMarketResolved }

func (p *MarketCreated) MarketRef() string          { return string(p.MarketID) }
func (p *BetPlaced) MarketRef() string              { return string(p.MarketID) }
func (p *MarketResolved) MarketRef() string         { return string(p.MarketID) }
func (p *WinningsClaimed) MarketRef() string        { return "" }
func (p *YieldDeposited) MarketRef() string         { return string(p.MarketID) }
func (p *BetProofNFTMinted) MarketRef() string      { return string(p.MarketID) }
func (p *WinningProofNFTMinted) MarketRef() string  { return string(p.MarketID) }
func (p *NautilusMarketResolved) MarketRef() string { return string(p.MarketID) }

func (*MarketCreated) sealed()          {}
func (*BetPlaced) sealed()              {}
func (*MarketResolved) sealed()         {}
func (*WinningsClaimed) sealed()        {}
func (*YieldDeposited) sealed()         {}
func (*BetProofNFTMinted) sealed()      {}
func (*WinningProofNFTMinted) sealed()  {}
func (*NautilusMarketResolved) sealed() {}

func newPayload(kind EventKind) (Payload, error) {
	switch kind {
	case KindMarketCreated:
		return &MarketCreated{}, nil
	case KindBetPlaced:
		return &BetPlaced{}, nil
	case KindMarketResolved:
		return &MarketResolved{}, nil
	case KindWinningsClaimed:
		return &WinningsClaimed{}, nil
	case KindYieldDeposited:
		return &YieldDeposited{}, nil
	case KindBetProofNFTMinted:
		return &BetProofNFTMinted{}, nil
	case KindWinningProofNFTMinted:
		return &WinningProofNFTMinted{}, nil
	case KindNautilusMarketResolved:
		return &NautilusMarketResolved{}, nil
	}
	return nil, fmt.Errorf("no payload for kind %d", int(kind))
}

// Decoded is a ledger event paired with its typed payload.
type Decoded struct {
	Event   sui.Event
	Kind    EventKind
	Payload Payload
}

func Decode(ev sui.Event) (Decoded, error) {
	kind, err := ParseEventKind(ev.Type)
	if err != nil {
		return Decoded{}, err
	}
	payload, err := newPayload(kind)
	if err != nil {
		return Decoded{}, err
	}
	if len(ev.ParsedJSON) == 0 {
		return Decoded{}, fmt.Errorf("%s %s has no payload", kind, ev.ID)
	}
	if err := json.Unmarshal(ev.ParsedJSON, payload); err != nil {
		return Decoded{}, fmt.Errorf("decode %s %s: %w", kind, ev.ID, err)
	}
	return Decoded{Event: ev, Kind: kind, Payload: payload}, nil
}

// flexString accepts JSON strings and numbers; ids arrive as either.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", raw)
	}
	*f = flexString(raw)
	return nil
}

func (f flexString) String() string {
	return string(f)
}
