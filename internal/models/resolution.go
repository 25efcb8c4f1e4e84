package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resolution is an immutable oracle attestation that was submitted on-chain.
type Resolution struct {
	ID                  string    `gorm:"primaryKey;type:text;comment:记录ID"`
	MarketID            string    `gorm:"type:text;not null;index;comment:平台市场ID"`
	ChainMarketID       uint64    `gorm:"not null;comment:链上数字市场ID"`
	Outcome             bool      `gorm:"not null;comment:结算结果"`
	SourceData          string    `gorm:"type:text;not null;comment:数据源快照"`
	SourceDataHash      string    `gorm:"type:text;not null;comment:数据源哈希"`
	ResolutionTimestamp int64     `gorm:"not null;comment:结算时间戳"`
	MediaHash           string    `gorm:"type:text;comment:媒体哈希"`
	Signature           string    `gorm:"type:text;not null;comment:签名"`
	PublicKey           string    `gorm:"type:text;not null;comment:公钥"`
	TxDigest            string    `gorm:"type:text;index;comment:上链交易"`
	CreatedAt           time.Time `gorm:"type:timestamptz;not null;index;comment:创建时间"`
}

func (Resolution) TableName() string {
	return "nautilus_resolutions"
}

// MarketResolution mirrors the latest platform MarketResolved event per market.
type MarketResolution struct {
	MarketID         string          `gorm:"primaryKey;type:text;comment:平台市场ID"`
	Outcome          bool            `gorm:"not null;comment:结算结果"`
	TotalYieldEarned decimal.Decimal `gorm:"type:numeric(30,0);not null;comment:总收益"`
	CreatedAt        time.Time       `gorm:"type:timestamptz;not null;comment:创建时间"`
	UpdatedAt        time.Time       `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (MarketResolution) TableName() string {
	return "market_resolutions"
}
