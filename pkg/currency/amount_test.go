package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDisplayAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"$ 100.00", "100", false},
		{"K 2500.00", "2500", false},
		{"K 2,500.50", "2500.5", false},
		{"€0.99", "0.99", false},
		{"", "0", false},
		{"n/a", "0", false},
		{"1.2.3", "0", true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDisplayAmount(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestDisplay_KeepsEnteredScale(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"50", "$ 50"},
		{"50.50", "$ 50.50"},
		{"100.00", "$ 100.00"},
		{"0.0", "$ 0.0"},
		{"1e3", "$ 1000"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Display("USD", decimal.RequireFromString(tc.in), -1)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDisplay_RoundTripsStoredAmount(t *testing.T) {
	for _, stored := range []string{"$ 100.00", "$ 50.5", "$ 7"} {
		amount, err := ParseDisplayAmount(stored)
		require.NoError(t, err)

		got, err := Display("USD", amount, -1)
		require.NoError(t, err)
		assert.Equal(t, stored, got)
	}
}

func TestDisplay(t *testing.T) {
	got, err := Display("ZMW", decimal.RequireFromString("925"), 2)
	require.NoError(t, err)
	assert.Equal(t, "K 925.00", got)

	got, err = Display("USD", decimal.RequireFromString("12.345"), -1)
	require.NoError(t, err)
	assert.Equal(t, "$ 12.345", got)

	_, err = Display("XTS", decimal.Zero, 2)
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}
