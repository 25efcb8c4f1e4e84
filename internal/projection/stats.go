package projection

import "prophyt/internal/models"

type UserStats struct {
	Bettor            string  `json:"bettor"`
	TotalBets         int     `json:"totalBets"`
	TotalAmount       float64 `json:"totalAmount"`
	YesBets           int     `json:"yesBets"`
	NoBets            int     `json:"noBets"`
	ResolvedBets      int     `json:"resolvedBets"`
	WonBets           int     `json:"wonBets"`
	LostBets          int     `json:"lostBets"`
	WinRate           float64 `json:"winRate"`
	TotalWinnings     float64 `json:"totalWinnings"`
	TotalYieldEarned  float64 `json:"totalYieldEarned"`
	ClaimedBets       int     `json:"claimedBets"`
	UnclaimedWinnings int     `json:"unclaimedWinnings"`
}

// BuildUserStats summarizes a bettor's bets. markets maps platform market id to market;
// bets whose market is missing count as unresolved.
func BuildUserStats(bettor string, bets []models.Bet, markets map[string]models.Market) UserStats {
	stats := UserStats{Bettor: bettor, TotalBets: len(bets)}
	for _, bet := range bets {
		stats.TotalAmount += bet.Amount.InexactFloat64()
		if bet.Position {
			stats.YesBets++
		} else {
			stats.NoBets++
		}
		if bet.WinningAmount != nil {
			stats.TotalWinnings += bet.WinningAmount.InexactFloat64()
		}
		if bet.YieldShare != nil {
			stats.TotalYieldEarned += bet.YieldShare.InexactFloat64()
		}
		if bet.IsClaimed {
			stats.ClaimedBets++
		}

		market, ok := markets[bet.MarketID]
		if !ok || !market.IsResolved {
			continue
		}
		stats.ResolvedBets++
		if market.Outcome != nil && *market.Outcome == bet.Position {
			stats.WonBets++
		} else {
			stats.LostBets++
		}
	}
	if stats.ResolvedBets > 0 {
		stats.WinRate = float64(stats.WonBets) / float64(stats.ResolvedBets) * 100
	}
	stats.UnclaimedWinnings = stats.WonBets - stats.ClaimedBets
	if stats.UnclaimedWinnings < 0 {
		stats.UnclaimedWinnings = 0
	}
	return stats
}
