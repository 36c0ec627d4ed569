package domain

import "fmt"

// FormatCents renders an amount of minor currency units as a display
// string, e.g. 2808 -> "$28.08". Negative amounts keep the sign ahead of
// the currency symbol.
func FormatCents(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s$%d.%02d", sign, amount/100, amount%100)
}
