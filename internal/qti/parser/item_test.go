package parser

import (
	"reflect"
	"testing"
)

const choiceV2 = `<?xml version="1.0" encoding="UTF-8"?>
<assessmentItem xmlns="http://www.imsglobal.org/xsd/imsqti_v2p1" identifier="q-cap" title="Capitals">
  <responseDeclaration identifier="RESPONSE" cardinality="single" baseType="identifier">
    <correctResponse><value>B</value></correctResponse>
  </responseDeclaration>
  <outcomeDeclaration identifier="MAXSCORE" baseType="float"><defaultValue><value>2</value></defaultValue></outcomeDeclaration>
  <itemBody>
    <p>Pick the capital of France.</p>
    <choiceInteraction responseIdentifier="RESPONSE" maxChoices="1">
      <prompt>Choose one</prompt>
      <simpleChoice identifier="A">Berlin</simpleChoice>
      <simpleChoice identifier="B">Paris</simpleChoice>
    </choiceInteraction>
  </itemBody>
</assessmentItem>`

const multiV3 = `<qti-assessment-item xmlns="http://www.imsglobal.org/xsd/imsqtiasi_v3p0" identifier="q-primes">
  <qti-response-declaration identifier="RESPONSE" cardinality="multiple" base-type="identifier">
    <qti-correct-response><qti-value>C</qti-value><qti-value>A</qti-value></qti-correct-response>
  </qti-response-declaration>
  <qti-item-body>
    <p>Which are prime?</p>
    <qti-choice-interaction response-identifier="RESPONSE" max-choices="0">
      <qti-simple-choice identifier="A">2</qti-simple-choice>
      <qti-simple-choice identifier="B">4</qti-simple-choice>
      <qti-simple-choice identifier="C">5</qti-simple-choice>
    </qti-choice-interaction>
  </qti-item-body>
</qti-assessment-item>`

const blanksV2 = `<assessmentItem identifier="q-fib">
  <responseDeclaration identifier="R1" cardinality="single" baseType="string">
    <correctResponse><value>5</value></correctResponse>
  </responseDeclaration>
  <responseDeclaration identifier="R2" cardinality="single" baseType="string">
    <correctResponse><value>Paris</value></correctResponse>
  </responseDeclaration>
  <itemBody><p>2+3 = <textEntryInteraction responseIdentifier="R1"/> and the capital is <textEntryInteraction responseIdentifier="R2"></textEntryInteraction>.</p></itemBody>
</assessmentItem>`

const essayV2 = `<assessmentItem identifier="q-essay">
  <responseDeclaration identifier="RESPONSE" cardinality="single" baseType="string"/>
  <itemBody><p>Explain photosynthesis.</p><extendedTextInteraction responseIdentifier="RESPONSE"/></itemBody>
</assessmentItem>`

func TestParseItem(t *testing.T) {
	cases := []struct {
		name    string
		xml     string
		kind    InteractionType
		key     []string
		choices int
		points  float64
		prompt  string
	}{
		{"choice v2", choiceV2, InteractionChoiceSingle, []string{"B"}, 2, 2, "<p>Pick the capital of France.</p>\nChoose one"},
		{"multi v3", multiV3, InteractionChoiceMulti, []string{"C", "A"}, 3, 1, "<p>Which are prime?</p>"},
		{"blanks", blanksV2, InteractionTextEntry, []string{"5", "Paris"}, 0, 1, "<p>2+3 = _____ and the capital is _____.</p>"},
		{"essay", essayV2, InteractionExtendedText, nil, 0, 1, "<p>Explain photosynthesis.</p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := ParseItem([]byte(tc.xml))
			if err != nil {
				t.Fatal(err)
			}
			if it.Kind != tc.kind {
				t.Fatalf("kind = %s", it.Kind)
			}
			if !reflect.DeepEqual(it.AnswerKey, tc.key) {
				t.Fatalf("key = %#v", it.AnswerKey)
			}
			if len(it.Choices) != tc.choices || it.Points != tc.points {
				t.Fatalf("choices=%d points=%v", len(it.Choices), it.Points)
			}
			if it.PromptHTML != tc.prompt {
				t.Fatalf("prompt = %q", it.PromptHTML)
			}
		})
	}
}
