package templates

import (
	"regexp"
	"sort"
	"strings"

	"mtmatch/internal/core"
	"mtmatch/internal/swift"
)

// minAffixLen: common prefixes/suffixes shorter than this carry no signal
// and are dropped from the synthesized value.
const minAffixLen = 2

const maxSampleValues = 5

var (
	amountRe  = regexp.MustCompile(`\d+[.,]\d{2}`)
	dateRe    = regexp.MustCompile(`^(\d{2}[/-]\d{2}[/-]\d{4}|\d{8})$`)
	numericRe = regexp.MustCompile(`^\d+$`)
	codeRe    = regexp.MustCompile(`^[A-Z0-9]+$`)
	alnumRe   = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)
)

// fieldNames maps well-known MT7xx tags to their business names.
var fieldNames = map[string]string{
	"20":  "Documentary Credit Number",
	"21":  "Related Reference",
	"23":  "Reference to Pre-Advice",
	"27":  "Sequence of Total",
	"31C": "Date of Issue",
	"31D": "Date and Place of Expiry",
	"32A": "Value Date, Currency, Amount",
	"32B": "Currency Code, Amount",
	"33B": "Currency Code, Original Amount",
	"39A": "Percentage Credit Amount Tolerance",
	"40A": "Form of Documentary Credit",
	"41A": "Available With... By...",
	"41D": "Available With... By...",
	"42C": "Drafts at...",
	"43P": "Partial Shipments",
	"43T": "Transhipment",
	"44C": "Latest Date of Shipment",
	"45A": "Description of Goods and/or Services",
	"46A": "Documents Required",
	"47A": "Additional Conditions",
	"48":  "Period for Presentation",
	"49":  "Confirmation Instructions",
	"50":  "Applicant",
	"50K": "Ordering Customer",
	"59":  "Beneficiary",
	"71B": "Charges",
	"72":  "Sender to Receiver Information",
	"78":  "Instructions to Paying Bank",
}

// FieldName returns the business name for a tag, or a generic fallback.
func FieldName(tag string) string {
	if name, ok := fieldNames[tag]; ok {
		return name
	}
	return "Field " + tag
}

// synthesize derives the template content and variable-field catalogue from
// the surviving members' parsed fields. Tags appear in the document order of
// the first member, then any remaining tags in sorted order.
func synthesize(members []swift.ParseResult) (string, []core.VariableField) {
	if len(members) == 0 {
		return "", nil
	}

	valuesByTag := make(map[string][]string)
	presence := make(map[string]int)
	for _, m := range members {
		fm := m.FieldMap()
		for tag, value := range fm {
			valuesByTag[tag] = append(valuesByTag[tag], value)
			presence[tag]++
		}
	}

	order := orderedTags(members, valuesByTag)

	var b strings.Builder
	var variables []core.VariableField
	for _, tag := range order {
		values := valuesByTag[tag]
		b.WriteByte(':')
		b.WriteString(tag)
		b.WriteByte(':')
		if allEqual(values) && presence[tag] == len(members) {
			b.WriteString(values[0])
		} else {
			prefix, suffix := commonAffixes(values)
			b.WriteString(prefix)
			b.WriteString("{VARIABLE}")
			b.WriteString(suffix)
			variables = append(variables, core.VariableField{
				Tag:          tag,
				FieldName:    FieldName(tag),
				Type:         classifyFieldType(values),
				SampleValues: sampleValues(values),
				Required:     presence[tag] == len(members),
			})
		}
		b.WriteByte('\n')
	}
	return b.String(), variables
}

func orderedTags(members []swift.ParseResult, valuesByTag map[string][]string) []string {
	var order []string
	seen := make(map[string]bool)
	for _, tag := range members[0].Tags() {
		if _, ok := valuesByTag[tag]; ok && !seen[tag] {
			seen[tag] = true
			order = append(order, tag)
		}
	}
	var rest []string
	for tag := range valuesByTag {
		if !seen[tag] {
			rest = append(rest, tag)
		}
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func allEqual(values []string) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// commonAffixes returns the longest common prefix and suffix across values,
// each retained only when at least minAffixLen characters long. The suffix is
// computed on the remainder after the prefix so the two never overlap.
func commonAffixes(values []string) (string, string) {
	prefix := values[0]
	for _, v := range values[1:] {
		prefix = commonPrefix(prefix, v)
	}
	if len(prefix) < minAffixLen {
		prefix = ""
	}

	remainders := make([]string, len(values))
	for i, v := range values {
		remainders[i] = v[len(prefix):]
	}
	suffix := remainders[0]
	for _, v := range remainders[1:] {
		suffix = commonSuffix(suffix, v)
	}
	if len(suffix) < minAffixLen {
		suffix = ""
	}
	return prefix, suffix
}

func commonPrefix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

func commonSuffix(a, b string) string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[len(a)-1-i] == b[len(b)-1-i] {
		i++
	}
	return a[len(a)-i:]
}

// classifyFieldType classifies a varying tag by pattern majority: every value
// must match the pattern for the class to apply, checked strictest first.
func classifyFieldType(values []string) core.FieldType {
	if allMatch(values, amountRe) {
		return core.FieldAmount
	}
	if allMatch(values, dateRe) {
		return core.FieldDate
	}
	if allMatch(values, numericRe) {
		return core.FieldNumeric
	}
	if allMatch(values, codeRe) {
		return core.FieldCode
	}
	if allMatch(values, alnumRe) {
		return core.FieldAlphanumeric
	}
	return core.FieldText
}

func allMatch(values []string, re *regexp.Regexp) bool {
	for _, v := range values {
		if !re.MatchString(v) {
			return false
		}
	}
	return true
}

func sampleValues(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == maxSampleValues {
			break
		}
	}
	return out
}
