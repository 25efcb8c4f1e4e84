package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Bet struct {
	ID            string           `gorm:"primaryKey;type:text;comment:链上下注ID"`
	MarketID      string           `gorm:"type:text;not null;index;comment:平台市场ID"`
	Bettor        string           `gorm:"type:text;not null;index;comment:下注地址"`
	Position      bool             `gorm:"not null;comment:下注方向"`
	Amount        decimal.Decimal  `gorm:"type:numeric(30,0);not null;comment:下注金额"`
	NftID         *string          `gorm:"type:text;comment:凭证NFT"`
	IsClaimed     bool             `gorm:"not null;default:false;comment:是否已领取"`
	WinningAmount *decimal.Decimal `gorm:"type:numeric(30,0);comment:奖金"`
	YieldShare    *decimal.Decimal `gorm:"type:numeric(30,0);comment:收益分成"`
	PlacedAt      time.Time        `gorm:"type:timestamptz;not null;index;comment:下注时间"`
	ClaimedAt     *time.Time       `gorm:"type:timestamptz;comment:领取时间"`
	TxDigest      string           `gorm:"type:text;comment:交易摘要"`
	CreatedAt     time.Time        `gorm:"type:timestamptz;not null;comment:创建时间"`
	UpdatedAt     time.Time        `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (Bet) TableName() string {
	return "bets"
}

type WinningsClaim struct {
	BetID         string          `gorm:"primaryKey;type:text;comment:下注ID"`
	User          string          `gorm:"type:text;not null;index;comment:领取地址"`
	WinningAmount decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:奖金"`
	YieldShare    decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:收益分成"`
	CreatedAt     time.Time       `gorm:"type:timestamptz;not null;comment:创建时间"`
	UpdatedAt     time.Time       `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (WinningsClaim) TableName() string {
	return "winnings_claims"
}

type YieldDeposit struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement;comment:自增ID"`
	MarketID    string          `gorm:"type:text;not null;index;comment:平台市场ID"`
	Amount      decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:金额"`
	TxDigest    string          `gorm:"type:text;not null;index:,unique,composite:tx_event;comment:交易摘要"`
	EventSeq    string          `gorm:"type:text;not null;index:,unique,composite:tx_event;comment:事件序号"`
	DepositedAt time.Time       `gorm:"type:timestamptz;not null;index;comment:存入时间"`
}

func (YieldDeposit) TableName() string {
	return "yield_deposits"
}
