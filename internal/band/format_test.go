package band

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatScoreMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		price  string
		score  float64
		band   *Band
		symbol string
		want   string
	}{
		{
			name:   "bold breakout with known glyph",
			price:  "65000.4",
			score:  1.2345,
			band:   &Band{Sign: "↑", Text: "breakout", Bold: true},
			symbol: "BTCUSDT",
			want:   "*↑ ₿ 65,000 Score: +1.23 breakout*",
		},
		{
			name:   "eth glyph, no bold",
			price:  "3210.9",
			score:  -0.5,
			band:   &Band{Sign: "↓", Text: "dip"},
			symbol: "ETHUSDT",
			want:   "↓ Ξ 3,210 Score: -0.50 dip",
		},
		{
			name:   "unknown symbol falls back to raw string",
			price:  "12.7",
			score:  0.05,
			band:   &Band{Sign: "·"},
			symbol: "SOLUSDT",
			want:   "· SOLUSDT 12 Score: +0.05",
		},
		{
			name:   "overflow band has no sign or text",
			price:  "65000.4",
			score:  3.5,
			band:   nil,
			symbol: "BTCUSDT",
			want:   "₿ 65,000 Score: +3.50",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			price := decimal.RequireFromString(tt.price)
			got := FormatScoreMessage(price, tt.score, tt.band, tt.symbol)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatTransactionMessage(t *testing.T) {
	t.Parallel()
	got := FormatTransactionMessage("FILLED",
		decimal.RequireFromString("12.5"),
		decimal.RequireFromString("1.234"))
	assert.Equal(t, "⚡💰 *FILLED: Profit: 1.23% 12.50₮*", got)
}

func TestGroupThousands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{65000, "65,000"},
		{1234567, "1,234,567"},
		{-65000, "-65,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, groupThousands(tt.in), "n=%d", tt.in)
	}
}
