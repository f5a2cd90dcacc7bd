package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================
// Questions
// ============================================================

// QuestionType selects how a question is answered.
type QuestionType string

const (
	TypeYesNo       QuestionType = "yes_no"
	TypeText        QuestionType = "text"
	TypeNumber      QuestionType = "number"
	TypeMaturity    QuestionType = "maturity"
	TypeSelect      QuestionType = "select"
	TypeMultiSelect QuestionType = "multi_select"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case TypeYesNo, TypeText, TypeNumber, TypeMaturity, TypeSelect, TypeMultiSelect:
		return true
	}
	return false
}

// Question is an immutable catalog entry.
type Question struct {
	ID               string       `json:"id" yaml:"id"`
	Category         string       `json:"category" yaml:"category"`
	Group            string       `json:"group" yaml:"group"`
	AssetClass       string       `json:"assetClass" yaml:"assetClass"`
	SecurityFunction string       `json:"securityFunction" yaml:"securityFunction"`
	Text             string       `json:"text" yaml:"text"`
	Type             QuestionType `json:"type" yaml:"type"`
	Options          []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Small            bool         `json:"pequenas" yaml:"pequenas"`
	Medium           bool         `json:"medias" yaml:"medias"`
	Large            bool         `json:"grandes" yaml:"grandes"`
	Required         bool         `json:"required" yaml:"required"`
	Order            int          `json:"order" yaml:"order"`
}

// AppliesTo reports whether the question is shown to companies of size s.
func (q Question) AppliesTo(s CompanySize) bool {
	switch s {
	case SizeSmall:
		return q.Small
	case SizeMedium:
		return q.Medium
	case SizeLarge:
		return q.Large
	}
	return false
}

// ============================================================
// Maturity
// ============================================================

// MaturityLevel is an implementation completeness score from 0 to 4.
type MaturityLevel int

const (
	MaturityNotImplemented MaturityLevel = iota
	MaturityInProgress
	MaturityPartial
	MaturityFinalStage
	MaturityFull
)

// Valid reports whether m is within 0..4.
func (m MaturityLevel) Valid() bool {
	return m >= MaturityNotImplemented && m <= MaturityFull
}

var maturityLabels = [...]string{
	"Não Implementado",
	"Em Implementação",
	"Implementado Parcialmente",
	"Em Fase Final",
	"Totalmente Implementado",
}

var maturityReportLabels = [...]string{
	"Nao Implementado",
	"Em Implementacao",
	"Implementado Parcialmente",
	"Em Fase Final",
	"Totalmente Implementado",
}

// Label returns the display label of the level.
func (m MaturityLevel) Label() string {
	if !m.Valid() {
		return ""
	}
	return maturityLabels[m]
}

// MaturityOption pairs a level with its display label.
type MaturityOption struct {
	Level MaturityLevel `json:"level"`
	Label string        `json:"label"`
}

// MaturityOptions lists every level in ascending order.
func MaturityOptions() []MaturityOption {
	out := make([]MaturityOption, 0, len(maturityLabels))
	for m := MaturityNotImplemented; m <= MaturityFull; m++ {
		out = append(out, MaturityOption{Level: m, Label: m.Label()})
	}
	return out
}

// ReportLabel returns the unaccented label used in text reports.
func (m MaturityLevel) ReportLabel() string {
	if !m.Valid() {
		return ""
	}
	return maturityReportLabels[m]
}

// ============================================================
// Answers
// ============================================================

// ValueKind discriminates the Value union.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindList
)

// Value is a string, number, boolean or list of strings, encoded as the
// matching JSON type.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

// StringValue builds a string value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue builds a numeric value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue builds a boolean value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// ListValue builds a list value.
func ListValue(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{Kind: KindList, List: items}
}

// IsBlank reports whether the value is the empty string. Only an empty
// string is blank: false, 0 and an empty list all count as answered.
func (v Value) IsBlank() bool {
	return v.Kind == KindString && v.Str == ""
}

// String renders the value verbatim for reports. List items are joined
// with a bare comma.
func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ",")
	default:
		return v.Str
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("answer value must not be null")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = BoolValue(b)
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("answer list must contain only strings: %w", err)
		}
		*v = ListValue(items...)
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported answer value: %s", string(data))
		}
		*v = NumberValue(n)
	}
	return nil
}

// Answer is the response to one question. MaturityLevel is nil when the
// question was not scored.
type Answer struct {
	QuestionID    string         `json:"questionId"`
	Value         Value          `json:"value"`
	MaturityLevel *MaturityLevel `json:"maturityLevel,omitempty"`
}

// Answered reports whether the answer counts toward progress.
func (a Answer) Answered() bool {
	return !a.Value.IsBlank()
}
