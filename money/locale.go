package money

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseLocale reads amounts the way payroll exports write them:
// "1 234,56", "1234,5", "1.234,56", "1,234.56", "-12,00 €".
//
// Whitespace of any kind (including NBSP and narrow NBSP) is a thousands
// separator. When both ',' and '.' appear, the right-most one is the decimal
// separator and the other is dropped. A lone ',' is a decimal comma.
// More than Scale fractional digits is rejected, not rounded, so "1.234"
// is an error.
func ParseLocale(s string) (Money, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '€' || r == '\'' {
			return -1
		}
		return r
	}, s)
	if cleaned == "" {
		return Zero, fmt.Errorf("%w: empty", ErrMalformed)
	}

	comma := strings.LastIndex(cleaned, ",")
	dot := strings.LastIndex(cleaned, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case comma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
		}
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	}
	if i := strings.IndexByte(cleaned, '.'); i >= 0 && len(cleaned)-i-1 > Scale {
		return Zero, fmt.Errorf("%w: %q has more than %d decimals", ErrMalformed, s, Scale)
	}

	m, err := Parse(cleaned)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return m, nil
}
