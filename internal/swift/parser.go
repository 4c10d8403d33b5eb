// Package swift parses MT7xx documentary-credit messages into tagged fields.
//
// The parser is deliberately lenient: it never returns an error, and malformed
// content simply yields an empty field map. Validation against the ISO MT
// catalogue is out of scope.
package swift

import (
	"regexp"
	"strings"
)

const (
	// UnknownParty is used when the header envelope carries no BIC.
	UnknownParty = "UNKNOWN"

	previewLen = 200
)

// Tags are anchored to the start of a line. The upstream format allows values
// (notably 45A/46A narratives) to contain ":NN:"-looking substrings mid-line,
// so an unanchored scan would split values apart.
var (
	tagRe    = regexp.MustCompile(`(?m)^:(\d{2}[A-Z]?):`)
	bicRe    = regexp.MustCompile(`[A-Z]{6}[A-Z0-9]{2}`)
	headerRe = regexp.MustCompile(`\{1:[^}]*\}\{2:[^}]*\}`)
	mtTypeRe = regexp.MustCompile(`\{2:[IO](\d{3})`)
)

// Field is a single tag/value pair in document order.
type Field struct {
	Tag   string
	Value string
}

// ParseResult holds the tagged fields of one message plus the header parties.
type ParseResult struct {
	Fields   []Field
	SenderID string
	ReceiverID string
}

// FieldMap returns the fields as a tag-keyed map. Later occurrences of a
// repeated tag win, matching last-writer-wins store semantics.
func (r ParseResult) FieldMap() map[string]string {
	m := make(map[string]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Tag] = f.Value
	}
	return m
}

// Tags returns the tag names in document order, first occurrence only.
func (r ParseResult) Tags() []string {
	seen := make(map[string]bool, len(r.Fields))
	var tags []string
	for _, f := range r.Fields {
		if !seen[f.Tag] {
			seen[f.Tag] = true
			tags = append(tags, f.Tag)
		}
	}
	return tags
}

// Parse extracts every ":TT:" / ":TTA:" field from raw and the sender and
// receiver BICs from the {1:..}{2:..} header envelope. It never fails; content
// without any recognizable tag yields an empty field list.
func Parse(raw string) ParseResult {
	res := ParseResult{SenderID: UnknownParty, ReceiverID: UnknownParty}
	if raw == "" {
		return res
	}

	if header := headerRe.FindString(raw); header != "" {
		bics := bicRe.FindAllString(header, 2)
		if len(bics) > 0 {
			res.SenderID = bics[0]
		}
		if len(bics) > 1 {
			res.ReceiverID = bics[1]
		}
	}

	locs := tagRe.FindAllStringSubmatchIndex(raw, -1)
	for i, loc := range locs {
		tag := raw[loc[2]:loc[3]]
		valStart := loc[1]
		valEnd := len(raw)
		if i+1 < len(locs) {
			valEnd = locs[i+1][0]
		}
		value := strings.TrimRight(raw[valStart:valEnd], " \t\r\n")
		res.Fields = append(res.Fields, Field{Tag: tag, Value: value})
	}
	return res
}

// Reassemble renders fields back to ":TAG:VALUE" lines in the given order.
// Parse(Reassemble(Parse(raw).Fields)) preserves the field map.
func Reassemble(fields []Field) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteByte(':')
		b.WriteString(f.Tag)
		b.WriteByte(':')
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	return b.String()
}

// SniffType extracts the MT type ("MT700") from the block-2 header, or ""
// when the header carries none.
func SniffType(raw string) string {
	m := mtTypeRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return "MT" + m[1]
}

// SplitBulk splits a multipart upload into individual messages on lines that
// open a new {1:..}{2:..} header envelope. Content before the first header is
// returned as its own chunk so headerless single-message uploads still work.
func SplitBulk(raw string) []string {
	lines := strings.Split(raw, "\n")
	var chunks []string
	var current []string
	flush := func() {
		chunk := strings.TrimSpace(strings.Join(current, "\n"))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current = current[:0]
	}
	for _, line := range lines {
		if headerRe.MatchString(line) && len(current) > 0 {
			flush()
		}
		current = append(current, line)
	}
	flush()
	return chunks
}

// Preview returns at most 200 characters of raw for vector-store previews.
func Preview(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= previewLen {
		return raw
	}
	return raw[:previewLen]
}
