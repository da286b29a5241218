package domain_test

import (
	"testing"

	"github.com/spooky-finn/go-bitso-bridge/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewMarketSymbol(t *testing.T) {
	tests := []struct {
		name        string
		base, quote string
		expectError bool
	}{
		{"ValidSymbol", "BTC", "MXN", false},
		{"EqualBaseQuote", "ETH", "ETH", true},
		{"EmptyBase", "", "MXN", true},
		{"EmptyQuote", "BTC", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbol(tt.base, tt.quote)

			if tt.expectError {
				assert.Error(t, err, "NewMarketSymbol() should return an error")
			} else {
				assert.NoError(t, err, "NewMarketSymbol() should not return an error")
			}
		})
	}
}

func TestNewSymbolFromString(t *testing.T) {
	tests := []struct {
		name        string
		symbol      string
		expectError bool
	}{
		{"ValidString", "btc_mxn", false},
		{"InvalidString", "eth-usd", true},
		{"EmptyString", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewMarketSymbolFromString(tt.symbol)

			if tt.expectError {
				assert.Error(t, err, "NewSymbolFromString() should return an error")
			} else {
				assert.NoError(t, err, "NewSymbolFromString() should not return an error")
			}
		})
	}
}

func TestMarketSymbol_String(t *testing.T) {
	ms, err := domain.NewMarketSymbol("BTC", "MXN")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, "btc_mxn", ms.String(), "String() should be the lowercase book name")
	assert.Equal(t, "btc-mxn", ms.Join("-"), "Join() should use the given separator")
}

func TestMarketSymbol_Equal(t *testing.T) {
	ms1 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "mxn"}
	ms2 := domain.MarketSymbol{BaseAsset: "btc", QuoteAsset: "mxn"}
	ms3 := domain.MarketSymbol{BaseAsset: "eth", QuoteAsset: "mxn"}

	assert.True(t, ms1.Equal(&ms2), "Equal() should return true for equal symbols")
	assert.False(t, ms1.Equal(&ms3), "Equal() should return false for different symbols")
}
