package pricing

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/zhaobenny/aobatop/internal/model"
)

const (
	// SecondsPerHour converts node-seconds to node-hours
	SecondsPerHour = 3600

	// DefaultNodeHourRate is the charge in yen per LX node-hour
	DefaultNodeHourRate = 22.0

	// DefaultCurrency is the symbol prefixed to costs
	DefaultCurrency = "¥"
)

// DefaultBillableClass is the AOBA-A/B host and class pair that is billed per node-hour
var DefaultBillableClass = model.BillableClass{HostID: "LX", ClassID: "LX"}

// Hours converts node-seconds to node-hours
func Hours(nodeSeconds float64) float64 {
	return nodeSeconds / SecondsPerHour
}

// Cost returns the charge for the given node-hours
func Cost(hours, rate float64) float64 {
	return hours * rate
}

// ValidateRate rejects rates that would make costs meaningless
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return fmt.Errorf("invalid node-hour rate %v: must be a positive number", rate)
	}
	return nil
}

// FormatCost formats a cost rounded to two decimals, e.g. ¥1,234.50
func FormatCost(cost float64, currency string) string {
	return currency + groupThousands(decimal.NewFromFloat(cost).StringFixed(2))
}

// FormatHours formats node-hours with two decimals
func FormatHours(hours float64) string {
	return groupThousands(decimal.NewFromFloat(hours).StringFixed(2))
}

// groupThousands inserts thousand separators into the integer part of a decimal string
func groupThousands(s string) string {
	negative := len(s) > 0 && s[0] == '-'
	if negative {
		s = s[1:]
	}

	intPart, fracPart := s, ""
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			intPart, fracPart = s[:i], s[i:]
			break
		}
	}

	result := make([]byte, 0, len(s)+len(intPart)/3)
	for i := 0; i < len(intPart); i++ {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, intPart[i])
	}

	out := string(result) + fracPart
	if negative {
		return "-" + out
	}
	return out
}
