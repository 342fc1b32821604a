package tmdl

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/quoting"
)

// Measure is a user-authored DAX measure extracted verbatim from an
// existing table file by the merger and re-inserted into the
// regenerated one (§4.12 item 1). TriviaLines and Body preserve the
// original text exactly; the emitter never reformats a measure.
type Measure struct {
	TriviaLines []string
	Name        string
	Body        []string // indented body lines, verbatim
}

// Emit renders the measure block verbatim.
func (m Measure) Emit() string {
	var b strings.Builder
	for _, t := range m.TriviaLines {
		b.WriteString(t)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "measure %s\n", m.Name)
	for _, line := range m.Body {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

// PartitionBodyText renders the "let ... in Source" wrapper around a
// partition source expression, shared by the table emitter and the
// differ/orchestrator so both sides of a query comparison are built
// from the identical template (§4.10's partition-body scan recovers
// the on-disk half; this produces the freshly-generated half).
func PartitionBodyText(source string) string {
	return fmt.Sprintf("\t\t\t\tlet\n\t\t\t\t\tSource = %s\n\t\t\t\tin\n\t\t\t\t\tSource", source)
}

// Table is the input to the Table-Emitter: everything needed to
// compose one table's TMDL file.
type Table struct {
	LogicalName    string
	DisplayName    string
	LineageTag     string
	Columns        []Column
	Measures       []Measure // preserved user measures, inserted by the merger
	PartitionName  string
	PartitionSource string
}

// EmitTable composes a full table TMDL file per §4.5: source comment,
// table header, columns, preserved measures, partition block, fixed
// annotations.
func EmitTable(t Table) string {
	var b strings.Builder

	fmt.Fprintf(&b, "/// Source: %s\n", t.LogicalName)
	fmt.Fprintf(&b, "table %s\n", quoting.Quote(t.DisplayName))
	fmt.Fprintf(&b, "\tlineageTag: %s\n", t.LineageTag)
	b.WriteString("\n")

	b.WriteString(EmitColumns(t.Columns))

	for _, m := range t.Measures {
		b.WriteString(m.Emit())
		b.WriteString("\n")
	}

	partitionName := t.PartitionName
	if partitionName == "" {
		partitionName = t.DisplayName
	}
	fmt.Fprintf(&b, "partition %s = m\n", quoting.Quote(partitionName))
	b.WriteString("\tmode: directQuery\n")
	b.WriteString("\tsource =\n")
	b.WriteString(PartitionBodyText(t.PartitionSource))
	b.WriteString("\n\n")
	b.WriteString("annotation PBI_NavigationStepName = Navigation\n")
	b.WriteString("annotation PBI_ResultType = Table\n")

	return b.String()
}
