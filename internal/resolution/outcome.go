package resolution

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	priceTargetPattern = regexp.MustCompile(`\$?([\d,]+(?:\.\d+)?)\s*([kmKM]\b)?`)
	thresholdPattern   = regexp.MustCompile(`(?i)(?:more than|at least|over|above|greater than|exceed)\s+([\d,]+(?:\.\d+)?)`)

	positiveWords = []string{"yes", "true", "1", "success", "active"}
	negativeWords = []string{"no", "false", "0", "failed", "inactive"}

	outcomeFields   = []string{"outcome", "result", "resolved", "answer", "success", "status"}
	priceFields     = []string{"price", "current_price", "value", "usd"}
	thresholdFields = []string{"value", "count", "total", "amount"}
)

// ParseExternalData extracts a YES/NO answer from a fetched data source body.
// It returns nil when the data does not settle the question.
func ParseExternalData(data any, question string) *bool {
	question = strings.ToLower(question)
	switch v := data.(type) {
	case nil:
		return nil
	case bool:
		return &v
	case string:
		return parseIndicators(v)
	case float64:
		return boolPtr(v > 0)
	case map[string]any:
		return parseObject(v, question)
	case []any:
		return parseStringified(v)
	}
	return nil
}

func parseIndicators(s string) *bool {
	text := strings.ToLower(s)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	var pos, neg int
	for _, w := range words {
		if contains(positiveWords, w) {
			pos++
		}
		if contains(negativeWords, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return boolPtr(true)
	case neg > pos:
		return boolPtr(false)
	}
	return nil
}

func parseObject(obj map[string]any, question string) *bool {
	for _, field := range outcomeFields {
		raw, ok := obj[field]
		if !ok {
			continue
		}
		if out := fieldOutcome(raw); out != nil {
			return out
		}
	}

	if strings.Contains(question, "price") || strings.Contains(question, "$") {
		if target, ok := ExtractPriceTarget(question); ok {
			for _, field := range priceFields {
				if value, ok := numeric(obj[field]); ok {
					return boolPtr(value.GreaterThanOrEqual(target))
				}
			}
		}
	}

	if threshold, ok := ExtractThreshold(question); ok {
		for _, field := range thresholdFields {
			if value, ok := numeric(obj[field]); ok {
				return boolPtr(value.GreaterThanOrEqual(threshold))
			}
		}
	}

	return parseStringified(obj)
}

func fieldOutcome(raw any) *bool {
	switch v := raw.(type) {
	case bool:
		return &v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "yes", "true", "1", "success":
			return boolPtr(true)
		case "no", "false", "0", "failed":
			return boolPtr(false)
		}
	case float64:
		return boolPtr(v > 0)
	}
	return nil
}

func parseStringified(v any) *bool {
	text := strings.ToLower(fmt.Sprint(v))
	for _, w := range []string{"true", "yes", "success", "active"} {
		if strings.Contains(text, w) {
			return boolPtr(true)
		}
	}
	return nil
}

// ExtractPriceTarget parses "$100k", "$1.5m" or "$50,000" out of a question.
func ExtractPriceTarget(question string) (decimal.Decimal, bool) {
	for _, m := range priceTargetPattern.FindAllStringSubmatch(question, -1) {
		if !strings.HasPrefix(m[0], "$") && m[2] == "" {
			continue
		}
		value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		switch strings.ToLower(m[2]) {
		case "k":
			value = value.Mul(decimal.NewFromInt(1_000))
		case "m":
			value = value.Mul(decimal.NewFromInt(1_000_000))
		}
		return value, true
	}
	return decimal.Zero, false
}

// ExtractThreshold parses "more than N" style thresholds out of a question.
func ExtractThreshold(question string) (decimal.Decimal, bool) {
	m := thresholdPattern.FindStringSubmatch(question)
	if m == nil {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// PoolSkew answers YES when the YES share of the pool exceeds threshold and NO when the NO
// share does. Balanced or empty pools are inconclusive.
func PoolSkew(yes, no decimal.Decimal, threshold float64) *bool {
	total := yes.Add(no)
	if !total.IsPositive() {
		return nil
	}
	ratio := yes.Div(total).InexactFloat64()
	switch {
	case ratio > threshold:
		return boolPtr(true)
	case ratio < 1-threshold:
		return boolPtr(false)
	}
	return nil
}

func numeric(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	}
	return decimal.Zero, false
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool {
	return &b
}

// parseUintDigits keeps the leading max digits of s.
func parseUintDigits(s string, max int) uint64 {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			if b.Len() == max {
				break
			}
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, err := strconv.ParseUint(b.String(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
