package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parseAmount normalizes an incoming payee amount. Clients send amounts as
// numbers, numeric strings, empty strings, or null; empty and null always
// normalize to a NULL amount (displayed as "To Be Determined").
func parseAmount(raw any) (decimal.NullDecimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(trimmed)
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q: %w", v, err)
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q: %w", v, err)
		}
		return decimal.NullDecimal{Decimal: d, Valid: true}, nil
	case float64:
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(v), Valid: true}, nil
	case int:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(v)), Valid: true}, nil
	case int64:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(v), Valid: true}, nil
	}
	return decimal.NullDecimal{}, fmt.Errorf("invalid amount type %T", raw)
}

func amountsEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	if !a.Valid {
		return true
	}
	return a.Decimal.Equal(b.Decimal)
}

// displayAmount is the JSON/report representation: a float for stored
// amounts, the literal "To Be Determined" for NULL.
func displayAmount(amount decimal.NullDecimal) any {
	if !amount.Valid {
		return "To Be Determined"
	}
	value, _ := amount.Decimal.Float64()
	return value
}
