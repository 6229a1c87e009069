package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/coopfin/backoffice/internal/ledger"
)

// FormulaKind tags the shape of a Formula. It is decided once when the formula is
// decoded and never re-inspected during evaluation.
type FormulaKind string

const (
	// FormulaInvalid marks an unrecognised shape. It evaluates to zero.
	FormulaInvalid FormulaKind = "invalid"
	// FormulaSimple sums a flat list of accounts.
	FormulaSimple FormulaKind = "simple"
	// FormulaBaseAdjust computes base + add - subtract.
	FormulaBaseAdjust FormulaKind = "base_add_subtract"
	// FormulaWeighted sums coefficient-weighted account groups.
	FormulaWeighted FormulaKind = "weighted"
)

// AccountCodes decodes from JSON strings or numbers and compares as exact strings.
type AccountCodes []string

// UnmarshalJSON accepts ["1101", 1102].
func (c *AccountCodes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	codes := make(AccountCodes, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			codes = append(codes, strings.TrimSpace(val))
		case json.Number:
			codes = append(codes, val.String())
		default:
			return fmt.Errorf("analytics: account code %v is not a string or number", v)
		}
	}
	*c = codes
	return nil
}

// Component is one weighted group of a FormulaWeighted.
type Component struct {
	Accounts    AccountCodes `json:"accounts"`
	Coefficient float64      `json:"coefficient"`
}

// Formula is a tagged variant over the three supported shapes.
type Formula struct {
	Kind       FormulaKind
	Accounts   AccountCodes
	Base       AccountCodes
	Add        AccountCodes
	Subtract   AccountCodes
	Components []Component

	raw json.RawMessage
}

// SimpleFormula builds a FormulaSimple.
func SimpleFormula(codes ...string) Formula {
	return Formula{Kind: FormulaSimple, Accounts: codes}
}

// BaseAdjustFormula builds a FormulaBaseAdjust.
func BaseAdjustFormula(base, add, subtract []string) Formula {
	return Formula{Kind: FormulaBaseAdjust, Base: base, Add: add, Subtract: subtract}
}

// WeightedFormula builds a FormulaWeighted.
func WeightedFormula(components ...Component) Formula {
	return Formula{Kind: FormulaWeighted, Components: components}
}

// Codes lists the account codes the formula references.
func (f Formula) Codes() []string {
	var codes []string
	switch f.Kind {
	case FormulaSimple:
		codes = append(codes, f.Accounts...)
	case FormulaBaseAdjust:
		codes = append(codes, f.Base...)
		codes = append(codes, f.Add...)
		codes = append(codes, f.Subtract...)
	case FormulaWeighted:
		for _, c := range f.Components {
			codes = append(codes, c.Accounts...)
		}
	}
	return ledger.UniqueCodes(codes)
}

type weightedComponentJSON struct {
	Accounts    AccountCodes `json:"accounts"`
	Coefficient *float64     `json:"coefficient"`
}

// UnmarshalJSON inspects the structure once and fixes the Kind:
//
//	["1101", "1102"] or {"accounts": [...]}        simple
//	{"base": [...], "add": [...], "subtract": [...]} base/add/subtract (any subset)
//	{"components": [{"accounts": [...], "coefficient": 2}]} weighted
//
// Anything else, including mixed shapes, decodes to FormulaInvalid without error so
// that one bad indicator document never blocks loading the others.
func (f *Formula) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	*f = Formula{Kind: FormulaInvalid, raw: append(json.RawMessage(nil), trimmed...)}
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '[':
		var codes AccountCodes
		if err := json.Unmarshal(trimmed, &codes); err != nil {
			return nil
		}
		*f = Formula{Kind: FormulaSimple, Accounts: codes}
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return nil
		}
		f.decodeObject(fields)
	}
	return nil
}

func (f *Formula) decodeObject(fields map[string]json.RawMessage) {
	_, hasAccounts := fields["accounts"]
	_, hasComponents := fields["components"]
	_, hasBase := fields["base"]
	_, hasAdd := fields["add"]
	_, hasSubtract := fields["subtract"]
	hasAdjust := hasBase || hasAdd || hasSubtract

	shapes := 0
	for _, present := range []bool{hasAccounts, hasComponents, hasAdjust} {
		if present {
			shapes++
		}
	}
	if shapes != 1 {
		return
	}

	switch {
	case hasAccounts:
		var codes AccountCodes
		if err := json.Unmarshal(fields["accounts"], &codes); err != nil {
			return
		}
		*f = Formula{Kind: FormulaSimple, Accounts: codes}
	case hasAdjust:
		out := Formula{Kind: FormulaBaseAdjust}
		targets := map[string]*AccountCodes{"base": &out.Base, "add": &out.Add, "subtract": &out.Subtract}
		for key, dst := range targets {
			raw, ok := fields[key]
			if !ok || string(raw) == "null" {
				continue
			}
			if err := json.Unmarshal(raw, dst); err != nil {
				return
			}
		}
		*f = out
	case hasComponents:
		var comps []weightedComponentJSON
		if err := json.Unmarshal(fields["components"], &comps); err != nil {
			return
		}
		out := Formula{Kind: FormulaWeighted, Components: make([]Component, 0, len(comps))}
		for _, c := range comps {
			if c.Coefficient == nil {
				return
			}
			out.Components = append(out.Components, Component{Accounts: c.Accounts, Coefficient: *c.Coefficient})
		}
		*f = out
	}
}

type adjustJSON struct {
	Base     AccountCodes `json:"base,omitempty"`
	Add      AccountCodes `json:"add,omitempty"`
	Subtract AccountCodes `json:"subtract,omitempty"`
}

// MarshalJSON writes the structural shape back. Invalid formulas round-trip their
// original document.
func (f Formula) MarshalJSON() ([]byte, error) {
	switch f.Kind {
	case FormulaSimple:
		if f.Accounts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal([]string(f.Accounts))
	case FormulaBaseAdjust:
		return json.Marshal(adjustJSON{Base: f.Base, Add: f.Add, Subtract: f.Subtract})
	case FormulaWeighted:
		comps := f.Components
		if comps == nil {
			comps = []Component{}
		}
		return json.Marshal(struct {
			Components []Component `json:"components"`
		}{Components: comps})
	default:
		if len(f.raw) == 0 {
			return []byte("null"), nil
		}
		return f.raw, nil
	}
}

// Evaluation is the total of a formula plus its per-account breakdown.
type Evaluation struct {
	Total     float64
	ByAccount map[string]float64
}

// Evaluate applies f to rows. Only rows whose account code equals a referenced code
// contribute; absolute replaces each amount by its magnitude before aggregation.
// ByAccount keeps the last matching row per code (a later duplicate on the same date
// overwrites the earlier entry) while Total sums every matching row. Subtracted codes
// appear negated in ByAccount; weighted codes appear multiplied by their coefficient.
func Evaluate(rows []ledger.BalanceRow, f Formula, absolute bool) (Evaluation, error) {
	eval := Evaluation{ByAccount: make(map[string]float64)}
	switch f.Kind {
	case FormulaSimple:
		eval.Total = accumulate(rows, f.Accounts, absolute, 1, eval.ByAccount)
	case FormulaBaseAdjust:
		eval.Total = accumulate(rows, f.Base, absolute, 1, eval.ByAccount) +
			accumulate(rows, f.Add, absolute, 1, eval.ByAccount) +
			accumulate(rows, f.Subtract, absolute, -1, eval.ByAccount)
	case FormulaWeighted:
		for _, c := range f.Components {
			if math.IsNaN(c.Coefficient) || math.IsInf(c.Coefficient, 0) {
				return Evaluation{}, fmt.Errorf("%w: %v", ErrNonFiniteCoefficient, c.Coefficient)
			}
			eval.Total += accumulate(rows, c.Accounts, absolute, c.Coefficient, eval.ByAccount)
		}
	}
	return eval, nil
}

// accumulate returns factor * sum(matched amounts) and records amount*factor per code.
func accumulate(rows []ledger.BalanceRow, codes []string, absolute bool, factor float64, detail map[string]float64) float64 {
	if len(codes) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	sum := 0.0
	for _, row := range rows {
		if _, ok := set[row.AccountCode]; !ok {
			continue
		}
		amount := row.Amount
		if absolute {
			amount = math.Abs(amount)
		}
		sum += amount
		detail[row.AccountCode] = amount * factor
	}
	return sum * factor
}
