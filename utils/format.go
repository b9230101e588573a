package utils

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var xpPrinter = message.NewPrinter(language.English)

// FormatXP renders an XP amount with thousands separators, e.g. "11,700 XP".
func FormatXP(amount int64) string {
	return xpPrinter.Sprintf("%d XP", amount)
}

// FormatNumber renders a bare amount with thousands separators.
func FormatNumber(amount int64) string {
	return xpPrinter.Sprintf("%d", amount)
}
