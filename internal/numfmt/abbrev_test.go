package numfmt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAbbrev(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{999, "999.00"},
		{1000, "1.00k"},
		{123456, "123.46k"},
		{219920, "219.92k"},
		{999999, "1.00m"},
		{1500000, "1.50m"},
		{2_500_000_000, "2.50b"},
		{3e12, "3.00t"},
		{-1500, "-1.50k"},
		{999.999, "1.00k"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Abbrev(c.in, 2), "Abbrev(%v)", c.in)
	}
}

func TestAbbrev_NaN(t *testing.T) {
	assert.Equal(t, NotAvailable, Abbrev(math.NaN(), 2))
	assert.Equal(t, NotAvailable, Abbrev(math.Inf(1), 2))
}

func TestAbbrev_Decimals(t *testing.T) {
	assert.Equal(t, "123k", Abbrev(123456, 0))
	assert.Equal(t, "123.5k", Abbrev(123456, 1))
	assert.Equal(t, "123k", Abbrev(123456, -3))
}
