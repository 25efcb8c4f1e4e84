package indexer

import (
	"fmt"
	"strings"

	"prophyt/internal/client/sui"
)

// EventKind identifies one tracked on-chain event type. Each kind is its own stream.
type EventKind int

const (
	KindMarketCreated EventKind = iota + 1
	KindBetPlaced
	KindMarketResolved
	KindWinningsClaimed
	KindYieldDeposited
	KindBetProofNFTMinted
	KindWinningProofNFTMinted
	KindNautilusMarketResolved
)

const (
	modulePredictionMarket = "prediction_market"
	moduleProofNFT         = "walrus_proof_nft"
	moduleNautilusOracle   = "nautilus_oracle"
)

type kindInfo struct {
	module string
	name   string
}

var kinds = map[EventKind]kindInfo{
	KindMarketCreated:          {modulePredictionMarket, "MarketCreated"},
	KindBetPlaced:              {modulePredictionMarket, "BetPlaced"},
	KindMarketResolved:         {modulePredictionMarket, "MarketResolved"},
	KindWinningsClaimed:        {modulePredictionMarket, "WinningsClaimed"},
	KindYieldDeposited:         {modulePredictionMarket, "YieldDeposited"},
	KindBetProofNFTMinted:      {moduleProofNFT, "BetProofNFTMinted"},
	KindWinningProofNFTMinted:  {moduleProofNFT, "WinningProofNFTMinted"},
	KindNautilusMarketResolved: {moduleNautilusOracle, "NautilusMarketResolved"},
}

// AllKinds lists every tracked kind in polling order.
func AllKinds() []EventKind {
	return []EventKind{
		KindMarketCreated,
		KindBetPlaced,
		KindMarketResolved,
		KindWinningsClaimed,
		KindYieldDeposited,
		KindBetProofNFTMinted,
		KindWinningProofNFTMinted,
		KindNautilusMarketResolved,
	}
}

func (k EventKind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k EventKind) Module() string {
	return kinds[k].module
}

func (k EventKind) Name() string {
	return kinds[k].name
}

// Stream is the cursor key of the kind, "<module>::<name>".
func (k EventKind) Stream() string {
	info, ok := kinds[k]
	if !ok {
		return fmt.Sprintf("unknown(%d)", int(k))
	}
	return info.module + "::" + info.name
}

func (k EventKind) String() string {
	return k.Stream()
}

// Filter returns the ledger query filter of the kind for a deployed package.
func (k EventKind) Filter(packageID string) sui.EventFilter {
	return sui.EventFilter{MoveEventType: packageID + "::" + k.Stream()}
}

// ParseEventKind decodes a fully qualified event type ("0xpkg::module::Name", possibly with
// type parameters) or a bare "module::Name" / "Name".
func ParseEventKind(eventType string) (EventKind, error) {
	raw := strings.TrimSpace(eventType)
	if i := strings.IndexByte(raw, '<'); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(raw, "::")
	name := parts[len(parts)-1]
	module := ""
	if len(parts) >= 2 {
		module = parts[len(parts)-2]
	}
	for kind, info := range kinds {
		if info.name != name {
			continue
		}
		if module == "" || module == info.module {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", eventType)
}

// ParseKinds maps stream names to kinds; an empty list selects every kind.
func ParseKinds(names []string) ([]EventKind, error) {
	if len(names) == 0 {
		return AllKinds(), nil
	}
	out := make([]EventKind, 0, len(names))
	seen := map[EventKind]struct{}{}
	for _, name := range names {
		kind, err := ParseEventKind(name)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		out = append(out, kind)
	}
	return out, nil
}
