package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule conditions and actions are stored as JSON objects keyed by the names
// below. Keys this package does not know (to_account, category,
// auto_reconcile) are ignored.

type conditionsWire struct {
	DescriptionContains []string          `json:"description_contains,omitempty"`
	DescriptionRegex    string            `json:"description_regex,omitempty"`
	AmountBetween       []decimal.Decimal `json:"amount_between,omitempty"`
	AmountEquals        *decimal.Decimal  `json:"amount_equals,omitempty"`
	FromAccount         string            `json:"from_account,omitempty"`
	Source              []string          `json:"source,omitempty"`
}

// DecodeConditions parses a stored condition object into typed conditions.
// An empty or null document yields no conditions, which matches every draft.
func DecodeConditions(raw []byte) ([]Condition, error) {
	if isEmptyDocument(raw) {
		return nil, nil
	}
	var w conditionsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("DecodeConditions: %w", err)
	}

	var out []Condition
	if len(w.DescriptionContains) > 0 {
		out = append(out, DescriptionContains{Keywords: w.DescriptionContains})
	}
	if w.DescriptionRegex != "" {
		out = append(out, DescriptionRegex{Pattern: w.DescriptionRegex})
	}
	if w.AmountBetween != nil {
		if len(w.AmountBetween) != 2 {
			return nil, fmt.Errorf("DecodeConditions: amount_between needs exactly two bounds, got %d", len(w.AmountBetween))
		}
		if w.AmountBetween[0].GreaterThan(w.AmountBetween[1]) {
			return nil, fmt.Errorf("DecodeConditions: amount_between lower bound %s exceeds upper bound %s",
				w.AmountBetween[0], w.AmountBetween[1])
		}
		out = append(out, AmountBetween{Min: w.AmountBetween[0], Max: w.AmountBetween[1]})
	}
	if w.AmountEquals != nil {
		out = append(out, AmountEquals{Value: *w.AmountEquals})
	}
	if w.FromAccount != "" {
		out = append(out, FromAccount{AccountID: w.FromAccount})
	}
	if len(w.Source) > 0 {
		out = append(out, SourceIn{Sources: w.Source})
	}
	return out, nil
}

// EncodeConditions is the inverse of DecodeConditions.
func EncodeConditions(conds []Condition) ([]byte, error) {
	var w conditionsWire
	for _, c := range conds {
		switch c := c.(type) {
		case DescriptionContains:
			w.DescriptionContains = c.Keywords
		case DescriptionRegex:
			w.DescriptionRegex = c.Pattern
		case AmountBetween:
			w.AmountBetween = []decimal.Decimal{c.Min, c.Max}
		case AmountEquals:
			v := c.Value
			w.AmountEquals = &v
		case FromAccount:
			w.FromAccount = c.AccountID
		case SourceIn:
			w.Source = c.Sources
		default:
			return nil, fmt.Errorf("EncodeConditions: unsupported condition %T", c)
		}
	}
	return json.Marshal(w)
}

// DecodeActions parses a stored action object. The set_category key is
// three-state: absent leaves the category alone, null or "" clears it, and
// any other string sets it.
func DecodeActions(raw []byte) ([]Action, error) {
	if isEmptyDocument(raw) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("DecodeActions: %w", err)
	}

	var out []Action
	if v, ok := fields["set_type"]; ok && !isNull(v) {
		var t TransactionType
		if err := json.Unmarshal(v, &t); err != nil {
			return nil, fmt.Errorf("DecodeActions: set_type: %w", err)
		}
		if !t.Valid() {
			return nil, fmt.Errorf("DecodeActions: set_type: unknown type %q", t)
		}
		out = append(out, SetType{Type: t})
	}
	if v, ok := fields["set_category"]; ok {
		var id string
		if !isNull(v) {
			if err := json.Unmarshal(v, &id); err != nil {
				return nil, fmt.Errorf("DecodeActions: set_category: %w", err)
			}
		}
		if id == "" {
			out = append(out, ClearCategory{})
		} else {
			out = append(out, SetCategory{CategoryID: id})
		}
	}
	if s, err := optionalString(fields, "link_to_account"); err != nil {
		return nil, err
	} else if s != "" {
		out = append(out, LinkToAccount{AccountID: s})
	}
	if s, err := optionalString(fields, "add_note"); err != nil {
		return nil, err
	} else if s != "" {
		out = append(out, AddNote{Note: s})
	}
	return out, nil
}

// EncodeActions is the inverse of DecodeActions.
func EncodeActions(actions []Action) ([]byte, error) {
	fields := make(map[string]any, len(actions))
	for _, a := range actions {
		switch a := a.(type) {
		case SetType:
			fields["set_type"] = a.Type
		case SetCategory:
			fields["set_category"] = a.CategoryID
		case ClearCategory:
			fields["set_category"] = nil
		case LinkToAccount:
			fields["link_to_account"] = a.AccountID
		case AddNote:
			fields["add_note"] = a.Note
		default:
			return nil, fmt.Errorf("EncodeActions: unsupported action %T", a)
		}
	}
	return json.Marshal(fields)
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("DecodeActions: %s: %w", key, err)
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func isEmptyDocument(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
