package templates

import (
	"strings"
	"testing"

	"mtmatch/internal/core"
	"mtmatch/internal/swift"
)

func parseAll(raws ...string) []swift.ParseResult {
	out := make([]swift.ParseResult, len(raws))
	for i, raw := range raws {
		out[i] = swift.Parse(raw)
	}
	return out
}

func TestSynthesizeIdenticalFieldsStayLiteral(t *testing.T) {
	members := parseAll(
		":20:LC1\n:59:BENE\n",
		":20:LC1\n:59:BENE\n",
		":20:LC1\n:59:BENE\n",
	)
	content, variables := synthesize(members)
	if len(variables) != 0 {
		t.Errorf("identical members should produce no variable fields, got %v", variables)
	}
	if !strings.Contains(content, ":20:LC1") || !strings.Contains(content, ":59:BENE") {
		t.Errorf("literal values lost: %q", content)
	}
}

func TestSynthesizeVaryingAmountField(t *testing.T) {
	members := parseAll(
		":20:LC1\n:32B:USD100000,00\n",
		":20:LC1\n:32B:USD105000,00\n",
		":20:LC1\n:32B:USD109000,00\n",
	)
	content, variables := synthesize(members)

	if len(variables) != 1 {
		t.Fatalf("expected one variable field, got %v", variables)
	}
	vf := variables[0]
	if vf.Tag != "32B" {
		t.Errorf("expected tag 32B, got %s", vf.Tag)
	}
	if vf.Type != core.FieldAmount {
		t.Errorf("expected AMOUNT, got %s", vf.Type)
	}
	if !vf.Required {
		t.Error("field present in every member should be required")
	}
	if !strings.Contains(content, ":32B:USD10{VARIABLE}000,00") {
		t.Errorf("expected shared affixes around the placeholder, got %q", content)
	}
}

func TestSynthesizeShortAffixesDropped(t *testing.T) {
	members := parseAll(
		":20:A1\n",
		":20:B2\n",
		":20:C3\n",
	)
	content, variables := synthesize(members)
	if len(variables) != 1 {
		t.Fatalf("expected one variable field, got %v", variables)
	}
	if !strings.Contains(content, ":20:{VARIABLE}") {
		t.Errorf("sub-minimum affixes should be dropped, got %q", content)
	}
}

func TestSynthesizeMissingTagNotRequired(t *testing.T) {
	members := parseAll(
		":20:LC1\n:71B:OUR\n",
		":20:LC1\n:71B:OUR\n",
		":20:LC1\n",
	)
	_, variables := synthesize(members)
	if len(variables) != 1 || variables[0].Tag != "71B" {
		t.Fatalf("a tag absent from one member should become variable, got %v", variables)
	}
	if variables[0].Required {
		t.Error("a tag absent from one member must not be required")
	}
}

func TestSynthesizePreservesDocumentOrder(t *testing.T) {
	members := parseAll(
		":59:BENE\n:20:LC1\n:32B:USD1,00\n",
		":59:BENE\n:20:LC1\n:32B:USD2,00\n",
	)
	content, _ := synthesize(members)
	if strings.Index(content, ":59:") > strings.Index(content, ":20:") {
		t.Errorf("tags should keep the first member's document order, got %q", content)
	}
}

func TestClassifyFieldType(t *testing.T) {
	cases := []struct {
		values []string
		want   core.FieldType
	}{
		{[]string{"USD100000,00", "EUR5,50"}, core.FieldAmount},
		{[]string{"20240101", "20241231"}, core.FieldDate},
		{[]string{"01/02/2024", "31-12-2024"}, core.FieldDate},
		{[]string{"123", "456"}, core.FieldNumeric},
		{[]string{"ABC1", "XYZ9"}, core.FieldCode},
		{[]string{"Goods 123", "More goods"}, core.FieldAlphanumeric},
		{[]string{"A+B", "C/D"}, core.FieldText},
	}
	for _, c := range cases {
		if got := classifyFieldType(c.values); got != c.want {
			t.Errorf("classifyFieldType(%v): expected %s, got %s", c.values, c.want, got)
		}
	}
}

func TestFieldName(t *testing.T) {
	if FieldName("32B") != "Currency Code, Amount" {
		t.Errorf("unexpected name for 32B: %s", FieldName("32B"))
	}
	if FieldName("99Z") != "Field 99Z" {
		t.Errorf("unknown tags should get the generic name, got %s", FieldName("99Z"))
	}
}

func TestSampleValuesDeduplicated(t *testing.T) {
	got := sampleValues([]string{"A", "A", "B", "C", "B", "D", "E", "F", "G"})
	if len(got) != maxSampleValues {
		t.Fatalf("expected %d samples, got %d", maxSampleValues, len(got))
	}
	seen := map[string]bool{}
	for _, v := range got {
		if seen[v] {
			t.Errorf("duplicate sample %q", v)
		}
		seen[v] = true
	}
}
