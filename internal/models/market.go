package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MarketStatusActive   = "active"
	MarketStatusResolved = "resolved"
)

// Market is the projection row for one prediction market.
// ID is platform-internal; the on-chain id is attached as BlockchainMarketID once known.
type Market struct {
	ID                 string          `gorm:"primaryKey;type:text;comment:平台市场ID"`
	MarketID           *string         `gorm:"type:text;uniqueIndex;comment:事件市场ID"`
	BlockchainMarketID *string         `gorm:"type:text;index;comment:链上市场ID"`
	Question           string          `gorm:"type:text;not null;index;comment:市场问题"`
	Description        *string         `gorm:"type:text;comment:描述"`
	Creator            *string         `gorm:"type:text;comment:创建者"`
	Status             string          `gorm:"type:text;not null;default:active;index;comment:状态"`
	Outcome            *bool           `gorm:"comment:结算结果"`
	IsResolved         bool            `gorm:"not null;default:false;index;comment:是否已结算"`
	EndDate            time.Time       `gorm:"type:timestamptz;not null;index;comment:结束时间"`
	ResolutionDate     *time.Time      `gorm:"type:timestamptz;comment:结算时间"`
	TotalYesBets       decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:YES总额"`
	TotalNoBets        decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:NO总额"`
	TotalYesCount      int64           `gorm:"not null;default:0;comment:YES笔数"`
	TotalNoCount       int64           `gorm:"not null;default:0;comment:NO笔数"`
	TotalPoolSize      decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:资金池"`
	Volume             decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:交易量"`
	OpenInterest       decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:未平仓量"`
	Probability        decimal.Decimal `gorm:"type:numeric(10,4);not null;default:50;comment:YES概率(0-100)"`
	TotalYieldEarned   decimal.Decimal `gorm:"type:numeric(30,0);not null;default:0;comment:总收益"`
	DataSourceURL      *string         `gorm:"type:text;comment:外部数据源"`
	ImageURL           *string         `gorm:"type:text;comment:图片URL"`
	ProtocolID         *string         `gorm:"type:text;index;comment:收益协议"`
	CreatedAt          time.Time       `gorm:"type:timestamptz;not null;index;comment:创建时间"`
	UpdatedAt          time.Time       `gorm:"type:timestamptz;not null;comment:更新时间"`
}

func (Market) TableName() string {
	return "markets"
}

// ChainRef returns the identifier used to address the market on-chain.
func (m *Market) ChainRef() string {
	if m == nil {
		return ""
	}
	if m.BlockchainMarketID != nil && *m.BlockchainMarketID != "" {
		return *m.BlockchainMarketID
	}
	if m.MarketID != nil {
		return *m.MarketID
	}
	return ""
}
