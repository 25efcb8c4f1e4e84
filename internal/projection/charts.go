package projection

import (
	"sort"
	"time"

	"prophyt/internal/models"
)

var intervalSeconds = map[string]int64{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"4h":  14400,
	"1d":  86400,
	"1w":  604800,
}

// maxBuckets caps a single series so a wide range with a tiny interval stays bounded.
const maxBuckets = 5000

// IntervalSeconds returns the bucket width; unknown intervals fall back to one hour.
func IntervalSeconds(interval string) int64 {
	if sec, ok := intervalSeconds[interval]; ok {
		return sec
	}
	return 3600
}

type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

type MarketChart struct {
	YesProbability []Point `json:"yesProbability"`
	NoProbability  []Point `json:"noProbability"`
	YesVolume      []Point `json:"yesVolume"`
	NoVolume       []Point `json:"noVolume"`
	TotalVolume    []Point `json:"totalVolume"`
	YesOdds        []Point `json:"yesOdds"`
	NoOdds         []Point `json:"noOdds"`
	BetCount       []Point `json:"betCount"`
}

type PlatformChart struct {
	TotalVolume   []Point `json:"totalVolume"`
	ActiveMarkets []Point `json:"activeMarkets"`
	TotalUsers    []Point `json:"totalUsers"`
	TotalBets     []Point `json:"totalBets"`
}

type bucket struct {
	yes      float64
	no       float64
	yesCount int
	noCount  int
}

func bucketRange(from, to time.Time, width int64) []int64 {
	start := floorTo(from.Unix(), width)
	end := floorTo(to.Unix(), width)
	if end < start {
		return nil
	}
	if (end-start)/width+1 > maxBuckets {
		start = end - (maxBuckets-1)*width
	}
	out := make([]int64, 0, (end-start)/width+1)
	for t := start; t <= end; t += width {
		out = append(out, t)
	}
	return out
}

func floorTo(ts, width int64) int64 {
	if ts < 0 {
		return ((ts - width + 1) / width) * width
	}
	return (ts / width) * width
}

// BuildMarketChart buckets bets between from and to. Volumes and probabilities are
// cumulative; betCount is per bucket.
func BuildMarketChart(bets []models.Bet, from, to time.Time, interval string) MarketChart {
	width := IntervalSeconds(interval)
	times := bucketRange(from, to, width)
	buckets := make(map[int64]*bucket, len(times))
	for _, t := range times {
		buckets[t] = &bucket{}
	}
	for _, bet := range bets {
		b, ok := buckets[floorTo(bet.PlacedAt.Unix(), width)]
		if !ok {
			continue
		}
		amount := bet.Amount.InexactFloat64()
		if bet.Position {
			b.yes += amount
			b.yesCount++
		} else {
			b.no += amount
			b.noCount++
		}
	}

	chart := MarketChart{
		YesProbability: make([]Point, 0, len(times)),
		NoProbability:  make([]Point, 0, len(times)),
		YesVolume:      make([]Point, 0, len(times)),
		NoVolume:       make([]Point, 0, len(times)),
		TotalVolume:    make([]Point, 0, len(times)),
		YesOdds:        make([]Point, 0, len(times)),
		NoOdds:         make([]Point, 0, len(times)),
		BetCount:       make([]Point, 0, len(times)),
	}
	var runningYes, runningNo float64
	for _, t := range times {
		b := buckets[t]
		runningYes += b.yes
		runningNo += b.no
		total := runningYes + runningNo

		yesProb, noProb := 0.5, 0.5
		if total > 0 {
			yesProb = runningYes / total
			noProb = runningNo / total
		}
		yesOdds, noOdds := 2.0, 2.0
		if yesProb > 0 && yesProb < 1 {
			yesOdds = 1 / yesProb
			noOdds = 1 / noProb
		}

		chart.YesProbability = append(chart.YesProbability, Point{Time: t, Value: yesProb})
		chart.NoProbability = append(chart.NoProbability, Point{Time: t, Value: noProb})
		chart.YesVolume = append(chart.YesVolume, Point{Time: t, Value: runningYes})
		chart.NoVolume = append(chart.NoVolume, Point{Time: t, Value: runningNo})
		chart.TotalVolume = append(chart.TotalVolume, Point{Time: t, Value: total})
		chart.YesOdds = append(chart.YesOdds, Point{Time: t, Value: yesOdds})
		chart.NoOdds = append(chart.NoOdds, Point{Time: t, Value: noOdds})
		chart.BetCount = append(chart.BetCount, Point{Time: t, Value: float64(b.yesCount + b.noCount)})
	}
	return chart
}

// BuildProbabilityPoints samples the running YES probability roughly points times.
// bets must be ordered by placement time.
func BuildProbabilityPoints(bets []models.Bet, points int) []Point {
	if len(bets) == 0 {
		return []Point{}
	}
	if points <= 0 {
		points = 50
	}
	step := len(bets) / points
	if step < 1 {
		step = 1
	}
	out := make([]Point, 0, points+1)
	var yes, no float64
	for i, bet := range bets {
		amount := bet.Amount.InexactFloat64()
		if bet.Position {
			yes += amount
		} else {
			no += amount
		}
		if i%step != 0 && i != len(bets)-1 {
			continue
		}
		prob := 0.5
		if yes+no > 0 {
			prob = yes / (yes + no)
		}
		out = append(out, Point{Time: bet.PlacedAt.Unix(), Value: prob})
	}
	return out
}

// BuildVolumeChart returns the cumulative traded volume at the end of each bucket.
func BuildVolumeChart(bets []models.Bet, from, to time.Time, interval string) []Point {
	width := IntervalSeconds(interval)
	times := bucketRange(from, to, width)
	perBucket := make(map[int64]float64, len(times))
	var before float64
	start := int64(0)
	if len(times) > 0 {
		start = times[0]
	}
	for _, bet := range bets {
		key := floorTo(bet.PlacedAt.Unix(), width)
		if key < start {
			before += bet.Amount.InexactFloat64()
			continue
		}
		perBucket[key] += bet.Amount.InexactFloat64()
	}
	out := make([]Point, 0, len(times))
	running := before
	for _, t := range times {
		running += perBucket[t]
		out = append(out, Point{Time: t, Value: running})
	}
	return out
}

// BuildUserHistory returns the cumulative staked amount after each bet.
func BuildUserHistory(bets []models.Bet) []Point {
	sorted := append([]models.Bet(nil), bets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PlacedAt.Before(sorted[j].PlacedAt) })
	out := make([]Point, 0, len(sorted))
	var cumulative float64
	for _, bet := range sorted {
		cumulative += bet.Amount.InexactFloat64()
		out = append(out, Point{Time: bet.PlacedAt.Unix(), Value: cumulative})
	}
	return out
}

// BuildPlatformChart returns daily platform totals for the last days days. Each point
// counts everything up to the end of that day.
func BuildPlatformChart(days int, now time.Time, bets []models.Bet, marketCreatedAt []time.Time) PlatformChart {
	if days <= 0 {
		days = 30
	}
	const day = int64(86400)
	nowTs := now.Unix()
	start := nowTs - int64(days)*day

	sortedBets := append([]models.Bet(nil), bets...)
	sort.SliceStable(sortedBets, func(i, j int) bool { return sortedBets[i].PlacedAt.Before(sortedBets[j].PlacedAt) })
	created := append([]time.Time(nil), marketCreatedAt...)
	sort.Slice(created, func(i, j int) bool { return created[i].Before(created[j]) })

	chart := PlatformChart{}
	users := map[string]struct{}{}
	var volume float64
	betIdx, marketIdx := 0, 0
	for t := start; t <= nowTs; t += day {
		endOfDay := t + day
		for betIdx < len(sortedBets) && sortedBets[betIdx].PlacedAt.Unix() <= endOfDay {
			volume += sortedBets[betIdx].Amount.InexactFloat64()
			users[sortedBets[betIdx].Bettor] = struct{}{}
			betIdx++
		}
		for marketIdx < len(created) && created[marketIdx].Unix() <= endOfDay {
			marketIdx++
		}
		chart.TotalVolume = append(chart.TotalVolume, Point{Time: t, Value: volume})
		chart.ActiveMarkets = append(chart.ActiveMarkets, Point{Time: t, Value: float64(marketIdx)})
		chart.TotalUsers = append(chart.TotalUsers, Point{Time: t, Value: float64(len(users))})
		chart.TotalBets = append(chart.TotalBets, Point{Time: t, Value: float64(betIdx)})
	}
	return chart
}
