package band

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// symbolGlyphs maps known instrument symbols to a display glyph.
// Unknown symbols fall back to the raw symbol string.
var symbolGlyphs = map[string]string{
	"BTCUSDT": "₿",
	"ETHUSDT": "Ξ",
}

// FormatScoreMessage renders a banded alert line:
// sign glyph, symbol glyph, price truncated to an integer with thousands
// separators, the score with explicit sign and two decimals, optional
// trailing band text, wrapped in '*' when the band asks for bold.
//
// b may be nil (overflow band): the message then carries no sign or text.
func FormatScoreMessage(closePrice decimal.Decimal, score float64, b *Band, symbol string) string {
	glyph, ok := symbolGlyphs[symbol]
	if !ok {
		glyph = symbol
	}

	var sign, text string
	var bold bool
	if b != nil {
		sign, text, bold = b.Sign, b.Text, b.Bold
	}

	parts := make([]string, 0, 4)
	if sign != "" {
		parts = append(parts, sign)
	}
	parts = append(parts, glyph)
	parts = append(parts, groupThousands(closePrice.IntPart()))
	parts = append(parts, fmt.Sprintf("Score: %+.2f", score))
	if text != "" {
		parts = append(parts, text)
	}

	msg := strings.Join(parts, " ")
	if bold {
		return "*" + msg + "*"
	}
	return msg
}

// FormatTransactionMessage renders a trade transaction notification.
func FormatTransactionMessage(status string, profit, profitPercent decimal.Decimal) string {
	return fmt.Sprintf("⚡💰 *%s: Profit: %s%% %s₮*", status, profitPercent.StringFixed(2), profit.StringFixed(2))
}

// groupThousands formats n with comma separators (65000 -> "65,000").
func groupThousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	if len(s) > 3 {
		var b strings.Builder
		lead := len(s) % 3
		if lead == 0 {
			lead = 3
		}
		b.WriteString(s[:lead])
		for i := lead; i < len(s); i += 3 {
			b.WriteByte(',')
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}
