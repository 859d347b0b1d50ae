package funding

import (
	"fmt"

	"golang.org/x/text/currency"
)

// FormatAmount renders an amount in minor units with its ISO code, e.g.
// "USD 20.00" or "JPY 1500". Unknown codes are treated as two-decimal.
func FormatAmount(minor int64, code string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}

	scale := 2
	if unit, err := currency.ParseISO(code); err == nil {
		code = unit.String()
		scale, _ = currency.Standard.Rounding(unit)
	}
	if scale == 0 {
		return fmt.Sprintf("%s %s%d", code, sign, minor)
	}

	div := int64(1)
	for range scale {
		div *= 10
	}
	return fmt.Sprintf("%s %s%d.%0*d", code, sign, minor/div, scale, minor%div)
}
