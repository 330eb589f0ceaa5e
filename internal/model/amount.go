package model

import (
	"fmt"
	"math/big"
)

// ParseAmount parses a base-10 base-unit amount. Empty means zero.
func ParseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}

// FormatAmount renders a base-unit amount as a decimal string, nil as "0".
func FormatAmount(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
