// Package merge implements the Merger: the preservation semantics
// applied when regenerating an existing TMDL tree. It extracts
// user-authored measures and metadata edits from a parsed prior file
// and splices them into the freshly emitted one, and resolves lineage
// tags and relationship GUIDs so identity survives a rebuild.
package merge

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/tmdl"
	"github.com/pinggolf/pbi-tmdl-builder/internal/typemap"
)

// autoGeneratedMeasureNames returns the tool's own measure names for a
// table, which are never treated as user content (§4.12 item 1).
func autoGeneratedMeasureNames(tableDisplayName string) map[string]bool {
	quoted := "'" + tableDisplayName + "'"
	return map[string]bool{
		tableDisplayName + " Count":        true,
		quoted + " Count":                  true,
		"Link to " + tableDisplayName:      true,
		"Link to " + quoted:                true,
	}
}

// ExtractUserMeasures returns every measure block in parsed that isn't
// one of the table's two auto-generated measures, preserved verbatim.
func ExtractUserMeasures(tableDisplayName string, parsed tmdl.ParsedTableFile) []tmdl.Measure {
	auto := autoGeneratedMeasureNames(tableDisplayName)
	var out []tmdl.Measure
	for _, m := range parsed.Measures {
		if auto[m.Name] {
			continue
		}
		out = append(out, tmdl.Measure{
			TriviaLines: m.TriviaLines,
			Name:        m.Name,
			Body:        m.Body,
		})
	}
	return out
}

// LineageLookup builds a tmdl.LineageLookup closure over a parsed
// table file's columns, keyed by the same (display_name, logical_name)
// identity the column emitter uses.
func LineageLookup(parsed tmdl.ParsedTableFile) tmdl.LineageLookup {
	byIdentity := make(map[string]string, len(parsed.Columns))
	for _, c := range parsed.Columns {
		byIdentity[c.DisplayName+"/"+c.LogicalName] = c.LineageTag
	}
	return func(identity string) string {
		return byIdentity[identity]
	}
}

// RelationshipGUIDLookup builds a tmdl.RelationshipGUIDLookup closure
// over a parsed relationships file, keyed by the identity string
// compared case-insensitively (both sides are lowercased).
func RelationshipGUIDLookup(existing []tmdl.ParsedRelationship) tmdl.RelationshipGUIDLookup {
	byIdentity := make(map[string]string, len(existing))
	for _, r := range existing {
		key := fmt.Sprintf("%s.%s→%s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		byIdentity[strings.ToLower(key)] = r.GUID
	}
	return func(identity string) string {
		return byIdentity[strings.ToLower(identity)]
	}
}

// PreserveUserRelationships returns the relationships present in
// existing but absent from expected, marked UserAdded so they're
// re-emitted with the leading comment (§4.12 item 2).
func PreserveUserRelationships(expected []tmdl.Relationship, existing []tmdl.ParsedRelationship) []tmdl.Relationship {
	expSet := make(map[string]bool, len(expected))
	for _, r := range expected {
		expSet[strings.ToLower(r.Identity())] = true
	}

	var preserved []tmdl.Relationship
	for _, r := range existing {
		key := fmt.Sprintf("%s.%s→%s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		if expSet[strings.ToLower(key)] {
			continue
		}
		preserved = append(preserved, tmdl.Relationship{
			GUID:                       r.GUID,
			FromTableDisplay:           r.FromTable,
			FromColumn:                 r.FromColumn,
			ToTableDisplay:             r.ToTable,
			ToColumn:                   r.ToColumn,
			IsActive:                   r.IsActive,
			RelyOnReferentialIntegrity: r.RelyOnReferentialIntegrity,
			UserAdded:                  true,
		})
	}
	return preserved
}

// PreserveColumnMetadata carries over user-edited description,
// formatString, summarizeBy, and non-generated annotations from a
// parsed existing column onto a freshly built one, but only when the
// two sides agree on dataType (§4.12 item 3). When the types differ,
// col is returned unchanged — the new type wins and the differ reports
// a Modified entry.
func PreserveColumnMetadata(col tmdl.Column, existing tmdl.ParsedColumn) tmdl.Column {
	if !strings.EqualFold(existing.DataType, col.DataType) {
		return col
	}
	if existing.Description != "" {
		col.Description = existing.Description
	}
	if existing.FormatString != "" {
		col.FormatString = existing.FormatString
	}
	if existing.SummarizeBy != "" {
		col.SummarizeBy = typemap.SummarizeBy(existing.SummarizeBy)
	}
	if len(existing.Annotations) > 0 {
		col.ExtraAnnotations = existing.Annotations
	}
	return col
}

// RenamedTableMatch reports whether a parsed table file's recorded
// source logical name matches the given logical name — the identity
// test for §4.12 item 5 (renamed tables tracked by filename change).
func RenamedTableMatch(parsed tmdl.ParsedTableFile, logicalName string) bool {
	return !parsed.Foreign && parsed.SourceLogicalName == logicalName
}

// IsDateTableFile reports whether content contains a
// "dataCategory: Time" declaration on any line — such a file is never
// rewritten (§4.12 item 6).
func IsDateTableFile(content string) bool {
	return strings.Contains(tmdl.ToLF(content), "dataCategory: Time")
}
