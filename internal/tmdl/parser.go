package tmdl

import (
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/quoting"
)

// ParsedColumn is what the parser recovers from an on-disk column
// block: just the fields the differ and merger need (§4.10).
type ParsedColumn struct {
	LogicalName  string // "" if the block carried no /// trivia — user-added, not Removed (Open Question 1)
	DisplayName  string
	DataType     string
	SourceColumn string
	FormatString string
	SummarizeBy  string
	LineageTag   string
	Description  string // a /// trivia line that isn't the logical_name or "Source:" pattern
	// Annotations holds every "annotation X = Y" line on the block other
	// than SummarizationSetBy and UnderlyingDateTimeDataType (those are
	// always tool-generated, never user content — §4.12 item 3).
	Annotations []string
	Raw          string // verbatim block text, used for preservation and round-trip
}

// ParsedMeasure is a user-authored measure block extracted verbatim.
type ParsedMeasure struct {
	Name        string
	TriviaLines []string
	Body        []string
	Raw         string
}

// ParsedRelationship is what the parser recovers from a relationship
// block.
type ParsedRelationship struct {
	GUID                       string
	FromTable, FromColumn      string
	ToTable, ToColumn          string
	IsActive                   bool
	RelyOnReferentialIntegrity bool
	UserAdded                  bool
	Raw                        string
}

// ParsedTableFile is the result of parsing one table's TMDL file.
type ParsedTableFile struct {
	Foreign      bool // first line isn't a recognised "table ..." header
	SourceLogicalName string // from "/// Source: <logical_name>"
	DisplayName  string
	LineageTag   string
	Columns      []ParsedColumn
	Measures     []ParsedMeasure
	PartitionBody string
	Warnings     []string
}

const sourceTrivia = "/// Source: "

// ParseTableFile parses the given table file content (any line
// ending) per the grammar recognised by §4.10. Parse failures on
// individual blocks are recorded as warnings and the block is
// dropped, not surfaced as a hard error — the differ treats such
// blocks as foreign.
func ParseTableFile(content string) ParsedTableFile {
	lines := lex(ToLF(content))
	out := ParsedTableFile{}

	i := 0
	for i < len(lines) && lines[i].kind == lineBlank {
		i++
	}
	if i >= len(lines) {
		out.Foreign = true
		return out
	}

	if lines[i].kind == lineTrivia && strings.HasPrefix(lines[i].text, sourceTrivia) {
		out.SourceLogicalName = strings.TrimSpace(strings.TrimPrefix(lines[i].text, sourceTrivia))
		i++
	}

	if i >= len(lines) || lines[i].kind != lineHeader || !strings.HasPrefix(lines[i].text, "table ") {
		out.Foreign = true
		return out
	}
	out.DisplayName = quoting.Unquote(strings.TrimSpace(strings.TrimPrefix(lines[i].text, "table ")))
	i++

	for i < len(lines) {
		ln := lines[i]
		switch {
		case ln.kind == lineBlank:
			i++

		case ln.kind == lineProperty:
			key, value, _ := splitProperty(ln.text)
			if key == "lineageTag" {
				out.LineageTag = value
			}
			i++

		case ln.kind == lineTrivia:
			block, next, ok := scanTriviaPrefixedBlock(lines, i)
			if !ok {
				out.Warnings = append(out.Warnings, "unparsable trivia-prefixed block")
				i = next
				continue
			}
			i = next
			if col, isCol := parseColumnBlock(block); isCol {
				out.Columns = append(out.Columns, col)
			} else if meas, isMeas := parseMeasureBlock(block); isMeas {
				out.Measures = append(out.Measures, meas)
			} else {
				out.Warnings = append(out.Warnings, "unrecognised trivia-prefixed block")
			}

		case ln.kind == lineHeader && strings.HasPrefix(ln.text, "column "):
			block, next := scanHeaderBlock(lines, i)
			i = next
			if col, ok := parseColumnBlock(block); ok {
				out.Columns = append(out.Columns, col)
			}

		case ln.kind == lineHeader && strings.HasPrefix(ln.text, "measure "):
			block, next := scanHeaderBlock(lines, i)
			i = next
			if meas, ok := parseMeasureBlock(block); ok {
				out.Measures = append(out.Measures, meas)
			}

		case ln.kind == lineHeader && strings.HasPrefix(ln.text, "partition "):
			body, next := scanPartitionBody(lines, i)
			out.PartitionBody = body
			i = next

		default:
			i++
		}
	}

	return out
}

// scanTriviaPrefixedBlock captures a run of trivia lines followed by
// one header line and its indented property lines. Returns the block
// lines, the index after the block, and whether a header line was
// actually found (a dangling trivia run with no following header is a
// parse failure for that block).
func scanTriviaPrefixedBlock(lines []line, start int) ([]line, int, bool) {
	i := start
	for i < len(lines) && lines[i].kind == lineTrivia {
		i++
	}
	if i >= len(lines) || lines[i].kind != lineHeader {
		return nil, i, false
	}
	block, next := scanHeaderBlock(lines, i)
	return append(append([]line{}, lines[start:i]...), block...), next, true
}

// scanHeaderBlock captures a header line plus its run of indented
// property lines, stopping at the next blank or unindented line.
func scanHeaderBlock(lines []line, headerIdx int) ([]line, int) {
	block := []line{lines[headerIdx]}
	i := headerIdx + 1
	for i < len(lines) && lines[i].kind == lineProperty {
		block = append(block, lines[i])
		i++
	}
	return block, i
}

func rawText(block []line) string {
	raws := make([]string, len(block))
	for i, l := range block {
		raws[i] = l.raw
	}
	return strings.Join(raws, "\n")
}

func parseColumnBlock(block []line) (ParsedColumn, bool) {
	var header *line
	var trivia []line
	var props []line
	for i := range block {
		switch block[i].kind {
		case lineTrivia:
			trivia = append(trivia, block[i])
		case lineHeader:
			if strings.HasPrefix(block[i].text, "column ") {
				header = &block[i]
			}
		case lineProperty:
			props = append(props, block[i])
		}
	}
	if header == nil {
		return ParsedColumn{}, false
	}

	col := ParsedColumn{Raw: rawText(block)}
	col.DisplayName = quoting.Unquote(strings.TrimSpace(strings.TrimPrefix(header.text, "column ")))

	for _, t := range trivia {
		text := strings.TrimSpace(strings.TrimPrefix(t.text, "///"))
		if col.LogicalName == "" && !strings.HasPrefix(t.text, sourceTrivia) {
			col.LogicalName = text
			continue
		}
		col.Description = text
	}

	for _, p := range props {
		if strings.HasPrefix(p.text, "annotation ") {
			text := strings.TrimSpace(strings.TrimPrefix(p.text, "annotation "))
			name, _, _ := strings.Cut(text, "=")
			name = strings.TrimSpace(name)
			if name != "SummarizationSetBy" && name != "UnderlyingDateTimeDataType" {
				col.Annotations = append(col.Annotations, text)
			}
			continue
		}

		key, value, _ := splitProperty(p.text)
		switch key {
		case "dataType":
			col.DataType = value
		case "sourceColumn":
			col.SourceColumn = value
		case "formatString":
			col.FormatString = value
		case "summarizeBy":
			col.SummarizeBy = value
		case "lineageTag":
			col.LineageTag = value
		}
	}

	return col, true
}

func parseMeasureBlock(block []line) (ParsedMeasure, bool) {
	var header *line
	var trivia []string
	var body []string
	for i := range block {
		switch block[i].kind {
		case lineTrivia:
			trivia = append(trivia, block[i].raw)
		case lineHeader:
			if strings.HasPrefix(block[i].text, "measure ") {
				header = &block[i]
			}
		case lineProperty:
			body = append(body, block[i].raw)
		}
	}
	if header == nil {
		return ParsedMeasure{}, false
	}
	return ParsedMeasure{
		Name:        strings.TrimSpace(strings.TrimPrefix(header.text, "measure ")),
		TriviaLines: trivia,
		Body:        body,
		Raw:         rawText(block),
	}, true
}

// scanPartitionBody locates the substring between "source =" and the
// next top-level annotation, per §4.10.
func scanPartitionBody(lines []line, headerIdx int) (string, int) {
	i := headerIdx + 1
	var body []string
	inSource := false
	for i < len(lines) {
		ln := lines[i]
		if ln.kind == lineHeader {
			break
		}
		if ln.kind == lineProperty {
			if !inSource && strings.TrimSpace(ln.text) == "source =" {
				inSource = true
				i++
				continue
			}
			if inSource {
				body = append(body, ln.raw)
			}
		}
		i++
	}
	return strings.Join(body, "\n"), i
}

// ParseRelationshipsFile parses relationships.tmdl per §4.10:
// "relationship <hex-guid>" followed by tab-indented property lines,
// terminated by a blank line or another relationship.
func ParseRelationshipsFile(content string) []ParsedRelationship {
	lines := lex(ToLF(content))
	var out []ParsedRelationship

	i := 0
	for i < len(lines) {
		ln := lines[i]
		if ln.kind == lineTrivia && strings.Contains(ln.text, "User-added relationship") {
			// peel the marker off, then parse the relationship block that follows
			if i+1 < len(lines) && lines[i+1].kind == lineHeader && strings.HasPrefix(lines[i+1].text, "relationship ") {
				block, next := scanHeaderBlock(lines, i+1)
				if rel, ok := parseRelationshipBlock(block); ok {
					rel.UserAdded = true
					out = append(out, rel)
				}
				i = next
				continue
			}
		}
		if ln.kind == lineHeader && strings.HasPrefix(ln.text, "relationship ") {
			block, next := scanHeaderBlock(lines, i)
			if rel, ok := parseRelationshipBlock(block); ok {
				out = append(out, rel)
			}
			i = next
			continue
		}
		i++
	}

	return out
}

func parseRelationshipBlock(block []line) (ParsedRelationship, bool) {
	if len(block) == 0 || block[0].kind != lineHeader {
		return ParsedRelationship{}, false
	}
	rel := ParsedRelationship{
		GUID:     strings.TrimSpace(strings.TrimPrefix(block[0].text, "relationship ")),
		IsActive: true,
		Raw:      rawText(block),
	}
	for _, p := range block[1:] {
		if p.kind != lineProperty {
			continue
		}
		key, value, hasValue := splitProperty(p.text)
		switch key {
		case "relyOnReferentialIntegrity":
			rel.RelyOnReferentialIntegrity = true
		case "isActive":
			if hasValue && value == "false" {
				rel.IsActive = false
			}
		case "fromColumn":
			rel.FromTable, rel.FromColumn = splitTableColumn(value)
		case "toColumn":
			rel.ToTable, rel.ToColumn = splitTableColumn(value)
		}
	}
	return rel, true
}

func splitTableColumn(value string) (table, column string) {
	// value is "<quoted-or-bare-table>.<column>"; the table portion may
	// itself contain dots when quoted, so split on the last unquoted dot.
	if strings.HasPrefix(value, "'") {
		if end := strings.Index(value[1:], "'"); end >= 0 {
			endIdx := end + 1
			table = quoting.Unquote(value[:endIdx+1])
			rest := strings.TrimPrefix(value[endIdx+1:], ".")
			return table, rest
		}
	}
	idx := strings.LastIndex(value, ".")
	if idx < 0 {
		return value, ""
	}
	return value[:idx], value[idx+1:]
}
