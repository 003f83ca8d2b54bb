// services/commission.go
package services

import (
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places kept on credited amounts.
const AmountScale = 8

// CommissionTable holds one rate per referral depth, index 0 being the
// immediate referrer. Rates apply to the originating daily return, never to
// downstream totals.
type CommissionTable []decimal.Decimal

var DefaultCommissionTable = CommissionTable{
	decimal.RequireFromString("0.10"),
	decimal.RequireFromString("0.05"),
	decimal.RequireFromString("0.03"),
	decimal.RequireFromString("0.02"),
	decimal.RequireFromString("0.01"),
	decimal.RequireFromString("0.005"),
	decimal.RequireFromString("0.005"),
	decimal.RequireFromString("0.003"),
	decimal.RequireFromString("0.002"),
	decimal.RequireFromString("0.001"),
}

func (t CommissionTable) Levels() int {
	return len(t)
}

// Commission returns the commission owed at depth (0-based) on base.
// Depths outside the table earn nothing.
func (t CommissionTable) Commission(depth int, base decimal.Decimal) decimal.Decimal {
	if depth < 0 || depth >= len(t) {
		return decimal.Zero
	}
	return base.Mul(t[depth]).Round(AmountScale)
}

// DailyReturn is principal * percent / 100.
func DailyReturn(principal, dailyPercent decimal.Decimal) decimal.Decimal {
	return principal.Mul(dailyPercent).Div(decimal.NewFromInt(100)).Round(AmountScale)
}
