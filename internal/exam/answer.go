package exam

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Answer is a taker's response. It is either Single or Multi; the JSON string
// encodings used on the wire and in storage are handled by DecodeAnswer and
// EncodeAnswer only.
type Answer interface {
	answer()
}

// Single is a one-string answer (choice, true/false, short answer).
type Single string

// Multi is a list answer (multi-select options, fill-in-the-blank values by position).
type Multi []string

func (Single) answer() {}
func (Multi) answer()  {}

// Values returns the answer as a list; a Single becomes a one-element list
// and a nil Answer an empty one.
func Values(a Answer) []string {
	switch v := a.(type) {
	case Single:
		return []string{string(v)}
	case Multi:
		return []string(v)
	default:
		return nil
	}
}

// Text returns the answer as one string; a Multi yields its first value.
func Text(a Answer) string {
	switch v := a.(type) {
	case Single:
		return string(v)
	case Multi:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Sorted returns a sorted copy of m.
func (m Multi) Sorted() Multi {
	out := make(Multi, len(m))
	copy(out, m)
	sort.Strings(out)
	return out
}

var ErrMalformedAnswer = errors.New("malformed answer")

// DecodeAnswer parses the wire encoding of an answer for a question type.
// Multi-select and fill-in-the-blank answers are JSON arrays of strings; a
// non-array fill-in-the-blank payload is accepted as a single blank.
func DecodeAnswer(t Archetype, raw string) (Answer, error) {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return Single(raw), nil
	case MultipleSelect:
		if strings.TrimSpace(raw) == "" {
			return Multi{}, nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return nil, fmt.Errorf("%w: multi-select expects a JSON array: %v", ErrMalformedAnswer, err)
		}
		return Multi(arr).Sorted(), nil
	case FillInTheBlank:
		var arr []string
		if err := json.Unmarshal([]byte(raw), &arr); err != nil {
			return Multi{raw}, nil
		}
		return Multi(arr), nil
	default:
		return nil, fmt.Errorf("%w: unknown question type %q", ErrMalformedAnswer, t)
	}
}

// EncodeAnswer produces the wire encoding of an answer. Multi values are
// written as JSON arrays; callers sort multi-select answers beforehand.
func EncodeAnswer(a Answer) string {
	switch v := a.(type) {
	case Single:
		return string(v)
	case Multi:
		if v == nil {
			v = Multi{}
		}
		b, _ := json.Marshal([]string(v))
		return string(b)
	default:
		return ""
	}
}

// legacyBlankSep joins blanks in answer keys written before keys were stored
// as JSON arrays.
const legacyBlankSep = ";&&;"

// DecodeAnswerKey parses a stored canonical answer.
func DecodeAnswerKey(t Archetype, stored string) ([]string, error) {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return []string{stored}, nil
	case MultipleSelect:
		if strings.TrimSpace(stored) == "" {
			return []string{}, nil
		}
		var arr []string
		if err := json.Unmarshal([]byte(stored), &arr); err != nil {
			return nil, fmt.Errorf("multi-select answer key: %w", err)
		}
		sort.Strings(arr)
		return arr, nil
	case FillInTheBlank:
		var arr []string
		if err := json.Unmarshal([]byte(stored), &arr); err == nil {
			return arr, nil
		}
		if strings.Contains(stored, legacyBlankSep) {
			return strings.Split(stored, legacyBlankSep), nil
		}
		return []string{stored}, nil
	default:
		return nil, fmt.Errorf("unknown question type %q", t)
	}
}

// EncodeAnswerKey produces the stored canonical answer for a question.
func EncodeAnswerKey(t Archetype, key []string) string {
	switch t {
	case MultipleSelect:
		return EncodeAnswer(Multi(key).Sorted())
	case FillInTheBlank:
		return EncodeAnswer(Multi(key))
	default:
		if len(key) == 0 {
			return ""
		}
		return key[0]
	}
}
