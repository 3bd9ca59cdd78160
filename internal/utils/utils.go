// Package utils provides common validation helpers for asset symbols.
package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for validation functions.
var (
	ErrNoAssets      = errors.New("zero assets requested")
	ErrTooManyAssets = errors.New("too many assets requested")
	ErrInvalidSymbol = errors.New("invalid asset symbol")
)

// quoteAssetSet contains the supported quote assets for trading pairs,
// used for O(1) lookup during validation.
var quoteAssetSet = map[string]bool{
	"USDT": true,
	"USD":  true,
	"BTC":  true,
	"ETH":  true,
}

// quoteAssets is the stable, pre-computed listing of supported quotes.
var quoteAssets = func() []string {
	// Longest-first so suffix matching prefers "USDT" over "USD".
	return []string{"USDT", "USD", "BTC", "ETH"}
}()

// QuoteAssets returns the supported quote assets, longest symbol first.
func QuoteAssets() []string { return quoteAssets }

// ValidateSymbol validates that an asset symbol follows the "BASE-QUOTE"
// format with a supported quote asset. Validation is case-insensitive.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("%w: symbol cannot be empty", ErrInvalidSymbol)
	}

	parts := strings.Split(symbol, "-")
	if len(parts) != 2 {
		return fmt.Errorf("%w: expected BASE-QUOTE, got %q", ErrInvalidSymbol, symbol)
	}
	if parts[0] == "" {
		return fmt.Errorf("%w: base asset cannot be empty", ErrInvalidSymbol)
	}
	if parts[1] == "" {
		return fmt.Errorf("%w: quote asset cannot be empty", ErrInvalidSymbol)
	}

	quote := strings.ToUpper(parts[1])
	if !quoteAssetSet[quote] {
		return fmt.Errorf("%w: unsupported quote asset %q (supported: %s)",
			ErrInvalidSymbol, quote, strings.Join(quoteAssets, ", "))
	}
	return nil
}

// ValidateAssets validates a slice of asset symbols and enforces the
// quantity limit.
func ValidateAssets(assets []string, maxAllowed int) error {
	if len(assets) == 0 {
		return ErrNoAssets
	}
	if maxAllowed <= 0 {
		return fmt.Errorf("%w: max allowed must be positive, got %d", ErrTooManyAssets, maxAllowed)
	}
	if len(assets) > maxAllowed {
		return fmt.Errorf("%w: requested %d assets, maximum allowed %d",
			ErrTooManyAssets, len(assets), maxAllowed)
	}
	for i, symbol := range assets {
		if err := ValidateSymbol(symbol); err != nil {
			return fmt.Errorf("asset at index %d: %w", i, err)
		}
	}
	return nil
}
