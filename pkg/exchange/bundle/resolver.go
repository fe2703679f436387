// Package bundle computes the settlement value of derived markets.
// A bundle's value is a pure function of its operands' resolved values,
// computed only at settlement time; trading price and settlement value
// are deliberately decoupled.
package bundle

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/openoutcry/exchange/pkg/exchange/market"
)

var ErrUnresolvedOperand = errors.New("operand has no resolved value")

// Resolve folds the bundle's formula left-to-right over the operands'
// resolved values: ADD sums, SUBTRACT takes the first minus the sum of
// the rest, MULTIPLY takes the product.
func Resolve(m *market.Market, values map[string]decimal.Decimal) (decimal.Decimal, error) {
	if m.Kind != market.Bundle || m.Formula == nil {
		return decimal.Zero, fmt.Errorf("market %s is not a bundle", m.ID)
	}

	operands := make([]decimal.Decimal, len(m.Formula.Operands))
	for i, id := range m.Formula.Operands {
		v, ok := values[id]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: %s (bundle %s)", ErrUnresolvedOperand, id, m.ID)
		}
		operands[i] = v
	}

	acc := operands[0]
	for _, v := range operands[1:] {
		switch m.Formula.Op {
		case market.Add:
			acc = acc.Add(v)
		case market.Subtract:
			acc = acc.Sub(v)
		case market.Multiply:
			acc = acc.Mul(v)
		default:
			return decimal.Zero, fmt.Errorf("unknown formula operation %d", m.Formula.Op)
		}
	}
	return acc, nil
}

// ResolveAll returns a value for every given market: basics take their
// declared true value, bundles are computed from them.
func ResolveAll(markets []*market.Market, trueValues map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(markets))
	for _, m := range markets {
		if m.Kind == market.Basic {
			v, ok := trueValues[m.ID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedOperand, m.ID)
			}
			out[m.ID] = v
		}
	}
	for _, m := range markets {
		if m.Kind == market.Bundle {
			v, err := Resolve(m, out)
			if err != nil {
				return nil, err
			}
			out[m.ID] = v
		}
	}
	return out, nil
}
