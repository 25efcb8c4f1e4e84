package db

import (
	"prophyt/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.EventCursor{},
		// raw ledger events
		&models.MarketCreatedEvent{},
		&models.BetPlacedEvent{},
		&models.MarketResolvedEvent{},
		&models.NautilusMarketResolvedEvent{},
		&models.WinningsClaimedEvent{},
		&models.YieldDepositedEvent{},
		&models.BetProofNFTMintedEvent{},
		&models.WinningProofNFTMintedEvent{},
		// projection
		&models.Market{},
		&models.Bet{},
		&models.WinningsClaim{},
		&models.YieldDeposit{},
		&models.MarketResolution{},
		&models.Resolution{},
	)
}
