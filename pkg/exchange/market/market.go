package market

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes directly tradable instruments from derived bundles
type Kind int8

const (
	Basic  Kind = iota // settles to an admin-declared true value
	Bundle             // settles to a formula over basic markets' true values
)

func (k Kind) String() string {
	switch k {
	case Basic:
		return "BASIC"
	case Bundle:
		return "BUNDLE"
	default:
		return "UNKNOWN"
	}
}

// ParseKind converts a wire string ("BASIC"/"BUNDLE") into a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(s) {
	case "BASIC":
		return Basic, nil
	case "BUNDLE":
		return Bundle, nil
	default:
		return 0, fmt.Errorf("unknown market kind %q", s)
	}
}

// Op is the fold operation of a bundle formula
type Op int8

const (
	Add      Op = iota // sum of operands
	Subtract           // first operand minus the sum of the rest
	Multiply           // product of operands
)

func (op Op) String() string {
	switch op {
	case Add:
		return "ADD"
	case Subtract:
		return "SUBTRACT"
	case Multiply:
		return "MULTIPLY"
	default:
		return "UNKNOWN"
	}
}

// ParseOp converts a wire string ("ADD"/"SUBTRACT"/"MULTIPLY") into an Op
func ParseOp(s string) (Op, error) {
	switch strings.ToUpper(s) {
	case "ADD":
		return Add, nil
	case "SUBTRACT":
		return Subtract, nil
	case "MULTIPLY":
		return Multiply, nil
	default:
		return 0, fmt.Errorf("unknown formula operation %q", s)
	}
}

// Formula declares how a bundle market settles: Op folded left-to-right
// over the resolved values of Operands. Operands must be basic markets
// that exist when the bundle is created.
type Formula struct {
	Op       Op       `json:"op"`
	Operands []string `json:"operands"` // ordered basic market ids, >= 2
}

// Market is an instrument participants can trade. Immutable after
// creation except by explicit admin deletion.
type Market struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Kind          Kind     `json:"kind"`
	PositionLimit int64    `json:"positionLimit"` // symmetric |position| cap
	Formula       *Formula `json:"formula,omitempty"`
	CreatedAt     int64    `json:"createdAt"` // unix millis
}

var (
	ErrDuplicateID    = errors.New("market id already exists")
	ErrInvalidFormula = errors.New("invalid bundle formula")
	ErrInvalidMarket  = errors.New("invalid market definition")
	ErrNotFound       = errors.New("market not found")
	ErrMarketInUse    = errors.New("market in use")
)

// Validate checks the market definition in isolation (formula operand
// existence is the registry's job).
func (m *Market) Validate() error {
	if m.ID == "" || m.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidMarket)
	}
	if m.PositionLimit <= 0 {
		return fmt.Errorf("%w: position limit must be positive", ErrInvalidMarket)
	}
	switch m.Kind {
	case Basic:
		if m.Formula != nil {
			return fmt.Errorf("%w: basic market cannot carry a formula", ErrInvalidFormula)
		}
	case Bundle:
		if m.Formula == nil {
			return fmt.Errorf("%w: bundle market requires a formula", ErrInvalidFormula)
		}
		if len(m.Formula.Operands) < 2 {
			return fmt.Errorf("%w: formula needs at least 2 operands", ErrInvalidFormula)
		}
		seen := make(map[string]struct{}, len(m.Formula.Operands))
		for _, id := range m.Formula.Operands {
			if id == "" {
				return fmt.Errorf("%w: empty operand id", ErrInvalidFormula)
			}
			if id == m.ID {
				return fmt.Errorf("%w: formula references itself", ErrInvalidFormula)
			}
			if _, dup := seen[id]; dup {
				return fmt.Errorf("%w: duplicate operand %s", ErrInvalidFormula, id)
			}
			seen[id] = struct{}{}
		}
	default:
		return fmt.Errorf("%w: unknown kind", ErrInvalidMarket)
	}
	return nil
}
