// utils/money.go
package utils

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.English)

// FormatMoney renders amount with thousands separators and two decimals,
// e.g. 1234.5 -> "$1,234.50".
func FormatMoney(amount decimal.Decimal) string {
	f, _ := amount.Round(2).Float64()
	return moneyPrinter.Sprintf("$%.2f", f)
}
