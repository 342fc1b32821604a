package tmdl

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/guidgen"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/quoting"
	"github.com/pinggolf/pbi-tmdl-builder/internal/typemap"
)

// Variant tags the discriminated shapes a column can take, replacing
// per-type branching with one exhaustive switch at build time (see
// spec Design Notes: "Polymorphism over attribute type should be a
// tagged discriminated variant").
type Variant int

const (
	VariantPlain Variant = iota
	VariantPrimaryKey
	VariantRequiredLookupHidden
	VariantLookupID
	VariantLookupName
	VariantChoiceName
	VariantDateWrap
)

// Column is the TMDL column-block model the Column-Emitter builds and
// the TMDL-Parser recovers from disk.
type Column struct {
	Variant Variant

	LogicalName string // source attribute logical name; empty for user-added columns
	DisplayName string
	SourceColumn string

	DataType           string
	FormatString       string
	SourceProviderType string
	SummarizeBy        typemap.SummarizeBy

	IsHidden       bool
	IsKey          bool
	IsDefaultLabel bool

	LineageTag string

	// Description and ExtraAnnotations are carried over from a parsed
	// existing block by the merger; the fresh emitter leaves them zero.
	Description      string
	ExtraAnnotations []string
}

// LineageLookup resolves the previously-assigned lineage tag for a
// column identity (display_name + "/" + logical_name, per §9's
// identity rule), returning "" when none is on file.
type LineageLookup func(identity string) string

func columnIdentity(displayName, logicalName string) string {
	return displayName + "/" + logicalName
}

// BuildColumns produces the ordered column list for table t, mirroring
// the select-list order from sqlgen.Emitter.BuildSelectList.
func BuildColumns(t model.TableSpec, dateConfig *model.DateTableConfig, lineageOf LineageLookup) []Column {
	if lineageOf == nil {
		lineageOf = func(string) string { return "" }
	}
	resolveTag := func(identity string) string {
		if tag := lineageOf(identity); tag != "" {
			return tag
		}
		return guidgen.New()
	}

	emitted := make(map[string]bool)
	var cols []Column

	// 1. primary key
	pkDisplay := t.PrimaryIDAttribute
	cols = append(cols, Column{
		Variant:      VariantPrimaryKey,
		LogicalName:  t.PrimaryIDAttribute,
		DisplayName:  pkDisplay,
		SourceColumn: t.PrimaryIDAttribute,
		DataType:     "int64", SummarizeBy: typemap.SummarizeNone,
		IsHidden: true, IsKey: true,
		LineageTag: resolveTag(columnIdentity(pkDisplay, t.PrimaryIDAttribute)),
	})
	emitted[t.PrimaryIDAttribute] = true

	// 2. required lookup columns not already emitted
	for _, c := range t.RequiredLookupColumns {
		if emitted[c] {
			continue
		}
		emitted[c] = true
		cols = append(cols, Column{
			Variant: VariantRequiredLookupHidden,
			LogicalName: c, DisplayName: c, SourceColumn: c,
			DataType: "int64", SourceProviderType: "int", SummarizeBy: typemap.SummarizeNone,
			IsHidden: true,
			LineageTag: resolveTag(columnIdentity(c, c)),
		})
	}

	// 3. declared attributes
	for _, a := range t.Attributes {
		if emitted[a.LogicalName] || a.LogicalName == "statecode" {
			continue
		}
		emitted[a.LogicalName] = true

		isDefaultLabel := a.LogicalName == t.PrimaryNameAttribute

		switch {
		case a.AttributeType.IsLookupLike():
			idDisplay := a.LogicalName
			cols = append(cols, Column{
				Variant: VariantLookupID,
				LogicalName: a.LogicalName, DisplayName: idDisplay, SourceColumn: a.LogicalName,
				DataType: "int64", SourceProviderType: "int", SummarizeBy: typemap.SummarizeNone,
				IsHidden: true,
				LineageTag: resolveTag(columnIdentity(idDisplay, a.LogicalName)),
			})
			nameDisplay := a.DisplayName
			if nameDisplay == "" {
				nameDisplay = defaultDisplayName(a.LogicalName)
			}
			nameSource := a.LogicalName + "name"
			cols = append(cols, Column{
				Variant: VariantLookupName,
				LogicalName: a.LogicalName, DisplayName: nameDisplay, SourceColumn: nameSource,
				DataType: "string", SummarizeBy: typemap.SummarizeNone,
				IsDefaultLabel: isDefaultLabel,
				LineageTag: resolveTag(columnIdentity(nameDisplay, a.LogicalName)),
			})

		case a.AttributeType.IsChoiceLike():
			display := a.DisplayName
			if display == "" {
				display = defaultDisplayName(a.LogicalName)
			}
			cols = append(cols, Column{
				Variant: VariantChoiceName,
				LogicalName: a.LogicalName, DisplayName: display, SourceColumn: a.ResolvedVirtualName(),
				DataType: "string", SummarizeBy: typemap.SummarizeNone,
				IsDefaultLabel: isDefaultLabel,
				LineageTag: resolveTag(columnIdentity(display, a.LogicalName)),
			})

		case a.AttributeType == model.AttributeDateTime && dateConfig != nil && dateConfig.IsWrapped(t.LogicalName, a.LogicalName):
			display := a.DisplayName
			if display == "" {
				display = defaultDisplayName(a.LogicalName)
			}
			m := typemap.Map(model.AttributeDateOnly)
			cols = append(cols, Column{
				Variant: VariantDateWrap,
				LogicalName: a.LogicalName, DisplayName: display, SourceColumn: a.LogicalName,
				DataType: m.DataType, FormatString: m.FormatString, SourceProviderType: m.SourceProviderType,
				SummarizeBy: m.SummarizeBy, IsDefaultLabel: isDefaultLabel,
				LineageTag: resolveTag(columnIdentity(display, a.LogicalName)),
			})

		default:
			display := a.DisplayName
			if display == "" {
				display = defaultDisplayName(a.LogicalName)
			}
			m := typemap.Map(a.AttributeType)
			cols = append(cols, Column{
				Variant: VariantPlain,
				LogicalName: a.LogicalName, DisplayName: display, SourceColumn: a.LogicalName,
				DataType: m.DataType, FormatString: m.FormatString, SourceProviderType: m.SourceProviderType,
				SummarizeBy: m.SummarizeBy, IsDefaultLabel: isDefaultLabel,
				Description: a.Description,
				LineageTag: resolveTag(columnIdentity(display, a.LogicalName)),
			})
		}
	}

	return cols
}

// defaultDisplayName title-cases a snake/lower Dataverse logical name
// into a human display name, e.g. "estimatedclosedate" -> "Estimatedclosedate".
// Real projects typically supply an explicit DisplayName; this is only
// the fallback for attributes that omit one.
func defaultDisplayName(logicalName string) string {
	if logicalName == "" {
		return logicalName
	}
	return strings.ToUpper(logicalName[:1]) + logicalName[1:]
}

// Emit renders one column block as TMDL text (LF-terminated lines; the
// caller normalises to CRLF at file-write time).
func (c Column) Emit() string {
	var b strings.Builder
	if c.LogicalName != "" {
		fmt.Fprintf(&b, "/// %s\n", c.LogicalName)
	}
	if c.Description != "" {
		fmt.Fprintf(&b, "/// %s\n", c.Description)
	}
	fmt.Fprintf(&b, "column %s\n", quoting.Quote(c.DisplayName))
	fmt.Fprintf(&b, "\tdataType: %s\n", c.DataType)
	if c.FormatString != "" {
		fmt.Fprintf(&b, "\tformatString: %s\n", c.FormatString)
	}
	if c.SourceProviderType != "" {
		fmt.Fprintf(&b, "\tsourceProviderType: %s\n", c.SourceProviderType)
	}
	if c.IsHidden {
		b.WriteString("\tisHidden\n")
	}
	if c.IsKey {
		b.WriteString("\tisKey\n")
	}
	fmt.Fprintf(&b, "\tlineageTag: %s\n", c.LineageTag)
	if c.IsDefaultLabel {
		b.WriteString("\tisDefaultLabel\n")
	}
	fmt.Fprintf(&b, "\tsummarizeBy: %s\n", c.SummarizeBy)
	fmt.Fprintf(&b, "\tsourceColumn: %s\n", c.SourceColumn)
	for _, ann := range c.ExtraAnnotations {
		fmt.Fprintf(&b, "\tannotation %s\n", ann)
	}
	b.WriteString("\tannotation SummarizationSetBy = Automatic\n")
	return b.String()
}

// EmitColumns renders cols in order, each followed by a blank line
// separator.
func EmitColumns(cols []Column) string {
	var b strings.Builder
	for _, c := range cols {
		b.WriteString(c.Emit())
		b.WriteString("\n")
	}
	return b.String()
}
