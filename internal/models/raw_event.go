package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RawEvent is implemented by every append-only ledger event table.
type RawEvent interface {
	TableName() string
	EventKey() (txDigest string, eventSeq string)
}

// RawEventMeta holds the ledger identity and audit payload shared by raw event tables.
// (tx_digest, event_seq) is unique per table.
type RawEventMeta struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement;comment:自增ID"`
	TxDigest    string         `gorm:"type:text;not null;index:,unique,composite:tx_event;comment:交易摘要"`
	EventSeq    string         `gorm:"type:text;not null;index:,unique,composite:tx_event;comment:交易内事件序号"`
	Sender      string         `gorm:"type:text;not null;comment:发送方地址"`
	TimestampMs int64          `gorm:"not null;index;comment:链上时间戳(毫秒)"`
	RawJSON     datatypes.JSON `gorm:"type:jsonb;not null;comment:原始载荷"`
	CreatedAt   time.Time      `gorm:"type:timestamptz;not null;comment:创建时间"`
	UpdatedAt   time.Time      `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (m RawEventMeta) EventKey() (string, string) {
	return m.TxDigest, m.EventSeq
}

type MarketCreatedEvent struct {
	RawEventMeta
	MarketID  string `gorm:"type:text;not null;index;comment:链上市场ID"`
	Creator   string `gorm:"type:text;not null;comment:创建者"`
	Question  string `gorm:"type:text;not null;comment:市场问题"`
	EndTime   int64  `gorm:"not null;comment:结束时间(秒)"`
}

func (MarketCreatedEvent) TableName() string {
	return "market_created_events"
}

type BetPlacedEvent struct {
	RawEventMeta
	BetID    string          `gorm:"type:text;not null;index;comment:下注ID"`
	MarketID string          `gorm:"type:text;not null;index;comment:链上市场ID"`
	Bettor   string          `gorm:"type:text;not null;index;comment:下注地址"`
	Position bool            `gorm:"not null;comment:下注方向"`
	Amount   decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:下注金额"`
	NftID    string          `gorm:"type:text;comment:凭证NFT"`
}

func (BetPlacedEvent) TableName() string {
	return "bet_placed_events"
}

type MarketResolvedEvent struct {
	RawEventMeta
	MarketID         string          `gorm:"type:text;not null;index;comment:链上市场ID"`
	Outcome          bool            `gorm:"not null;comment:结算结果"`
	TotalYieldEarned decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:总收益"`
}

func (MarketResolvedEvent) TableName() string {
	return "market_resolved_events"
}

type NautilusMarketResolvedEvent struct {
	RawEventMeta
	MarketID            string `gorm:"type:text;not null;index;comment:链上市场ID"`
	Outcome             bool   `gorm:"not null;comment:结算结果"`
	SourceData          string `gorm:"type:text;comment:数据源快照"`
	ResolutionTimestamp int64  `gorm:"not null;comment:结算时间(秒)"`
	EnclaveID           string `gorm:"type:text;comment:预言机enclave"`
	BlobAddress         string `gorm:"type:text;comment:blob地址"`
	ImageURL            string `gorm:"type:text;comment:图片URL"`
	ImageBlobID         string `gorm:"type:text;comment:图片blob"`
}

func (NautilusMarketResolvedEvent) TableName() string {
	return "nautilus_market_resolved_events"
}

type WinningsClaimedEvent struct {
	RawEventMeta
	BetID         string          `gorm:"type:text;not null;index;comment:下注ID"`
	User          string          `gorm:"type:text;not null;index;comment:领取地址"`
	WinningAmount decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:奖金"`
	YieldShare    decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:收益分成"`
	NftID         string          `gorm:"type:text;comment:凭证NFT"`
}

func (WinningsClaimedEvent) TableName() string {
	return "winnings_claimed_events"
}

type YieldDepositedEvent struct {
	RawEventMeta
	MarketID string          `gorm:"type:text;not null;index;comment:链上市场ID"`
	Amount   decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:存入收益"`
}

func (YieldDepositedEvent) TableName() string {
	return "yield_deposited_events"
}

type BetProofNFTMintedEvent struct {
	RawEventMeta
	MarketID    string          `gorm:"type:text;not null;index;comment:链上市场ID"`
	BetID       string          `gorm:"type:text;not null;index;comment:下注ID"`
	NftID       string          `gorm:"type:text;not null;comment:NFT ID"`
	Owner       string          `gorm:"type:text;not null;comment:持有人"`
	Position    bool            `gorm:"not null;comment:下注方向"`
	BetAmount   decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:下注金额"`
	BlobAddress string          `gorm:"type:text;comment:blob地址"`
	ImageURL    string          `gorm:"type:text;comment:图片URL"`
	ImageBlobID string          `gorm:"type:text;comment:图片blob"`
}

func (BetProofNFTMintedEvent) TableName() string {
	return "bet_proof_nft_minted_events"
}

type WinningProofNFTMintedEvent struct {
	RawEventMeta
	MarketID         string          `gorm:"type:text;not null;index;comment:链上市场ID"`
	BetID            string          `gorm:"type:text;not null;index;comment:下注ID"`
	NftID            string          `gorm:"type:text;not null;comment:NFT ID"`
	Owner            string          `gorm:"type:text;not null;comment:持有人"`
	WinningAmount    decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:奖金"`
	ProfitPercentage decimal.Decimal `gorm:"type:numeric(20,4);not null;comment:收益率"`
	BlobAddress      string          `gorm:"type:text;comment:blob地址"`
	ImageURL         string          `gorm:"type:text;comment:图片URL"`
	ImageBlobID      string          `gorm:"type:text;comment:图片blob"`
}

func (WinningProofNFTMintedEvent) TableName() string {
	return "winning_proof_nft_minted_events"
}
