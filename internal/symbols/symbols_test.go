package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAliases(t *testing.T) {
	cases := map[string]string{
		"gold":    "XAUUSD",
		"GOLD":    "XAUUSD",
		"silver":  "XAGUSD",
		"us30":    "DJ30",
		"nas100":  "USTEC",
		"xauusd":  "XAUUSD",
		" eurusd": "EURUSD",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestIsIndexAndGoldAndJPY(t *testing.T) {
	assert.True(t, IsIndex("DJ30"))
	assert.True(t, IsIndex("us30"))
	assert.False(t, IsIndex("EURUSD"))

	assert.True(t, IsGold("GOLD"))
	assert.True(t, IsGold("xauusd"))
	assert.False(t, IsGold("XAGUSD"))

	assert.True(t, IsJPYPair("USDJPY"))
	assert.False(t, IsJPYPair("EURUSD"))
}

func TestStripSuffixAndEqualIgnoringSuffix(t *testing.T) {
	assert.Equal(t, "XAUUSD", StripSuffix("XAUUSDm", "m"))
	assert.Equal(t, "EURUSD", StripSuffix("EURUSD", ""))
	assert.True(t, EqualIgnoringSuffix("XAUUSDm", "xauusd", "m"))
	assert.False(t, EqualIgnoringSuffix("XAUUSDm", "EURUSD", "m"))
}

func TestIsCrypto(t *testing.T) {
	assert.True(t, IsCrypto("BTCUSD"))
	assert.False(t, IsCrypto("EURUSD"))
}
