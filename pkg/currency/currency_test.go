package currency

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbol(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"USD", "$"},
		{"ZMW", "K"},
		{"zar", "R"},
		{" GBP ", "£"},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			got, err := Symbol(tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("XYZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCurrency))
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("zmw")
	require.NoError(t, err)
	assert.Equal(t, "ZMW", got)

	_, err = Normalize("DOLLARS")
	assert.ErrorIs(t, err, ErrUnknownCurrency)

	_, err = Normalize("")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
}

func TestAll_ReturnsCopy(t *testing.T) {
	all := All()
	require.NotEmpty(t, all)
	assert.Equal(t, "USD", all[0].Code)

	all[0].Symbol = "changed"
	sym, err := Symbol("USD")
	require.NoError(t, err)
	assert.Equal(t, "$", sym)
}

func TestTableCodesAreISO(t *testing.T) {
	for _, c := range All() {
		code, err := Normalize(c.Code)
		if assert.NoError(t, err, c.Code) {
			assert.Equal(t, c.Code, code)
		}
	}
}
