package parser

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// assessmentItem accepts both QTI 2.x element names and their QTI 3 qti-*
// spellings.
type assessmentItem struct {
	Identifier string                `xml:"identifier,attr"`
	Title      string                `xml:"title,attr"`
	Body       itemBody              `xml:"itemBody"`
	Body3      itemBody              `xml:"qti-item-body"`
	Responses  []responseDeclaration `xml:"responseDeclaration"`
	Responses3 []responseDeclaration `xml:"qti-response-declaration"`
	Outcomes   []outcomeDeclaration  `xml:"outcomeDeclaration"`
	Outcomes3  []outcomeDeclaration  `xml:"qti-outcome-declaration"`
}
type itemBody struct {
	RawXML string `xml:",innerxml"`
}
type responseDeclaration struct {
	Identifier  string   `xml:"identifier,attr"`
	Cardinality string   `xml:"cardinality,attr"` // single|multiple
	Values      []string `xml:"correctResponse>value"`
	Values3     []string `xml:"qti-correct-response>qti-value"`
}

func (r responseDeclaration) correct() []string {
	if len(r.Values) > 0 {
		return r.Values
	}
	return r.Values3
}

type outcomeDeclaration struct {
	Identifier string `xml:"identifier,attr"`
	Default    string `xml:"defaultValue>value"`
	Default3   string `xml:"qti-default-value>qti-value"`
}

type InteractionType string

const (
	InteractionChoiceSingle InteractionType = "choice_single"
	InteractionChoiceMulti  InteractionType = "choice_multi"
	InteractionTextEntry    InteractionType = "text_entry"
	InteractionExtendedText InteractionType = "extended_text"
)

// BlankMarker replaces each text entry interaction in a prompt.
const BlankMarker = "_____"

type ParsedItem struct {
	ID         string
	Title      string
	PromptHTML string
	Kind       InteractionType
	Choices    []Choice // for choice
	AnswerKey  []string // correct choice ids, or one string per blank
	Points     float64
}

type Choice struct {
	ID    string
	Label string // HTML
}

var (
	choiceTags   = []string{"choiceinteraction", "qti-choice-interaction"}
	entryTags    = []string{"textentryinteraction", "qti-text-entry-interaction"}
	extendedTags = []string{"extendedtextinteraction", "qti-extended-text-interaction"}
)

// ParseItemFile reads one assessment item. Interactions are recognized from
// the body; only the first interaction kind found is used.
func ParseItemFile(baseDir, rel string) (ParsedItem, error) {
	b, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(rel)))
	if err != nil {
		return ParsedItem{}, err
	}
	return ParseItem(b)
}

func ParseItem(b []byte) (ParsedItem, error) {
	var it assessmentItem
	if err := xml.Unmarshal(b, &it); err != nil {
		return ParsedItem{}, err
	}
	body := it.Body.RawXML
	if strings.TrimSpace(body) == "" {
		body = it.Body3.RawXML
	}
	responses := append(it.Responses, it.Responses3...)
	outcomes := append(it.Outcomes, it.Outcomes3...)

	pi := ParsedItem{
		ID:     it.Identifier,
		Title:  it.Title,
		Points: maxScore(outcomes),
	}

	lower := asciiLower(body)
	switch {
	case containsTag(lower, choiceTags):
		pi.Kind = InteractionChoiceSingle
		if len(responses) > 0 {
			if responses[0].Cardinality == "multiple" {
				pi.Kind = InteractionChoiceMulti
			}
			pi.AnswerKey = responses[0].correct()
		}
		pi.Choices = extractChoices(body)
		pi.PromptHTML = extractPrompt(body, choiceTags)
	case containsTag(lower, entryTags):
		pi.Kind = InteractionTextEntry
		for _, r := range responses {
			if v := r.correct(); len(v) > 0 {
				pi.AnswerKey = append(pi.AnswerKey, v[0])
			}
		}
		pi.PromptHTML = strings.TrimSpace(replaceElements(body, entryTags, BlankMarker))
	default:
		pi.Kind = InteractionExtendedText
		for _, r := range responses {
			if v := r.correct(); len(v) > 0 {
				pi.AnswerKey = []string{v[0]}
				break
			}
		}
		pi.PromptHTML = extractPrompt(body, extendedTags)
	}
	return pi, nil
}

func maxScore(outcomes []outcomeDeclaration) float64 {
	for _, o := range outcomes {
		if !strings.EqualFold(o.Identifier, "MAXSCORE") {
			continue
		}
		v := o.Default
		if v == "" {
			v = o.Default3
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			return f
		}
	}
	return 1
}

func containsTag(lower string, tags []string) bool {
	for _, t := range tags {
		if strings.Contains(lower, "<"+t) {
			return true
		}
	}
	return false
}

func firstTag(lower string, tags []string) int {
	idx := -1
	for _, t := range tags {
		if i := strings.Index(lower, "<"+t); i >= 0 && (idx == -1 || i < idx) {
			idx = i
		}
	}
	return idx
}

// extractPrompt keeps the markup before the interaction plus any prompt
// element inside it.
func extractPrompt(inner string, tags []string) string {
	idx := firstTag(asciiLower(inner), tags)
	if idx == -1 {
		return strings.TrimSpace(inner)
	}
	prompt := strings.TrimSpace(inner[:idx])
	if p := innerOf(inner[idx:], "prompt", "qti-prompt"); p != "" {
		if prompt != "" {
			prompt += "\n"
		}
		prompt += p
	}
	return prompt
}

// innerOf returns the inner XML of the first element with one of names.
func innerOf(fragment string, names ...string) string {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	dec.Strict = false
	for {
		t, err := dec.Token()
		if err != nil {
			return ""
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		for _, n := range names {
			if strings.EqualFold(se.Name.Local, n) {
				var v struct {
					Inner string `xml:",innerxml"`
				}
				if err := dec.DecodeElement(&v, &se); err != nil {
					return ""
				}
				return strings.TrimSpace(v.Inner)
			}
		}
	}
}

// replaceElements swaps every element named by tags (self-closing or not)
// for with.
func replaceElements(inner string, tags []string, with string) string {
	var b strings.Builder
	rest := inner
	for {
		lower := asciiLower(rest)
		start := firstTag(lower, tags)
		if start == -1 {
			b.WriteString(rest)
			return b.String()
		}
		open := strings.Index(lower[start:], ">")
		if open == -1 {
			b.WriteString(rest)
			return b.String()
		}
		end := start + open + 1
		if lower[start+open-1] != '/' {
			name := lower[start+1:]
			if sp := strings.IndexAny(name, " \t\r\n/>"); sp >= 0 {
				name = name[:sp]
			}
			if c := strings.Index(lower[end:], "</"+name); c >= 0 {
				if gt := strings.Index(lower[end+c:], ">"); gt >= 0 {
					end = end + c + gt + 1
				}
			}
		}
		b.WriteString(rest[:start])
		b.WriteString(with)
		rest = rest[end:]
	}
}

// extractChoices collects simpleChoice identifiers and labels in order.
func extractChoices(inner string) []Choice {
	out := []Choice{}
	dec := xml.NewDecoder(strings.NewReader(inner))
	dec.Strict = false
	for {
		t, err := dec.Token()
		if err != nil {
			break
		}
		se, ok := t.(xml.StartElement)
		if !ok {
			continue
		}
		if !strings.EqualFold(se.Name.Local, "simpleChoice") && !strings.EqualFold(se.Name.Local, "qti-simple-choice") {
			continue
		}
		var id string
		for _, a := range se.Attr {
			if strings.EqualFold(a.Name.Local, "identifier") {
				id = a.Value
				break
			}
		}
		var text struct {
			Inner string `xml:",innerxml"`
		}
		if err := dec.DecodeElement(&text, &se); err == nil {
			out = append(out, Choice{ID: id, Label: strings.TrimSpace(text.Inner)})
		}
	}
	return out
}

// asciiLower lowercases A-Z only, so byte offsets stay valid for the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
