package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every quantity and cost.
const Scale int32 = 8

// ArithmeticError reports malformed decimal input or an undefined operation.
type ArithmeticError struct {
	Op    string
	Input string
	Msg   string
}

func (e *ArithmeticError) Error() string {
	if e.Input != "" {
		return fmt.Sprintf("arithmetic error: %s %q: %s", e.Op, e.Input, e.Msg)
	}
	return fmt.Sprintf("arithmetic error: %s: %s", e.Op, e.Msg)
}

// ParseDecimal converts a string to a decimal.Decimal value at the fixed scale.
// Input with more fractional digits than Scale is truncated, never rounded.
func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, &ArithmeticError{Op: "parse", Msg: "empty decimal string"}
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &ArithmeticError{Op: "parse", Input: value, Msg: err.Error()}
	}
	return dec.Truncate(Scale), nil
}

// MustParseDecimal is ParseDecimal for literals known to be valid.
func MustParseDecimal(value string) decimal.Decimal {
	d, err := ParseDecimal(value)
	if err != nil {
		panic(err)
	}
	return d
}

// Normalize truncates d to the fixed scale.
func Normalize(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

func Add(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Add(b))
}

func Sub(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Sub(b))
}

func Mul(a, b decimal.Decimal) decimal.Decimal {
	return Normalize(a.Mul(b))
}

// Div divides a by b, truncating toward zero at Scale digits.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, &ArithmeticError{Op: "div", Input: a.String(), Msg: "division by zero"}
	}
	q, _ := a.QuoRem(b, Scale)
	return q, nil
}

// Cmp returns -1, 0 or +1.
func Cmp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// WeightedAverageCost returns (oldQty*oldCost + qty*cost) / (oldQty + qty).
// A non-positive prior quantity resets the average to the incoming cost.
func WeightedAverageCost(oldQty, oldCost, qty, cost decimal.Decimal) (decimal.Decimal, error) {
	if !oldQty.IsPositive() {
		return Normalize(cost), nil
	}
	totalQty := oldQty.Add(qty)
	totalValue := oldQty.Mul(oldCost).Add(qty.Mul(cost))
	return Div(totalValue, totalQty)
}
