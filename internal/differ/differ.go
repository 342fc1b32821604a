// Package differ implements the Differ: it compares a freshly emitted
// model (columns, relationships, queries, URL) against the TMDL
// parsed from disk and classifies the difference into a ChangeSet of
// impact-tagged entries. The named-comparator-registry shape mirrors
// internal/services/detectors in the teacher repo (a DetectorRegistry
// of named IssueDetectors, each returning typed findings); here each
// comparator inspects one dimension of the model instead of one M3
// data anomaly.
package differ

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/tmdl"
)

// Impact is the severity tag every Change carries.
type Impact string

const (
	ImpactSafe        Impact = "Safe"
	ImpactAdditive     Impact = "Additive"
	ImpactModerate     Impact = "Moderate"
	ImpactDestructive Impact = "Destructive"
)

// Kind names the category of change.
type Kind string

const (
	KindNew          Kind = "New"
	KindRemoved      Kind = "Removed"
	KindModified     Kind = "Modified"
	KindPreserve     Kind = "Preserve"
	KindQueryChanged Kind = "QueryChanged"
	KindRename       Kind = "Rename"
	KindWarning      Kind = "Warning"
)

// Change is one entry in a ChangeSet.
type Change struct {
	Table  string
	Kind   Kind
	Impact Impact
	Detail string
}

// ChangeSet is the Differ's output: per-table column/measure findings
// plus model-wide relationship and URL findings.
type ChangeSet struct {
	ColumnChanges       []Change
	RelationshipChanges []Change
	QueryChanges        []Change
	URLChanges          []Change
	Warnings            []Change
}

// IsClean reports whether the column, relationship, query and URL
// groups contain nothing beyond Preserve entries — the shape
// Idempotence (§8 property 4) requires of Apply;Analyze. Entries in
// Warnings are not counted.
func (c ChangeSet) IsClean() bool {
	for _, group := range [][]Change{c.ColumnChanges, c.RelationshipChanges, c.QueryChanges, c.URLChanges} {
		for _, ch := range group {
			if ch.Kind != KindPreserve {
				return false
			}
		}
	}
	return true
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeQuery implements §4.11's query comparison normalisation:
// uppercase, then collapse all whitespace runs to a single space.
func NormalizeQuery(sql string) string {
	upper := strings.ToUpper(sql)
	collapsed := whitespaceRun.ReplaceAllString(upper, " ")
	return strings.TrimSpace(collapsed)
}

// CompareColumns matches parsed columns to expected ones by display
// name (case-insensitive) and emits New/Removed/Modified/Preserve
// entries per §4.11.
func CompareColumns(table string, expected []tmdl.Column, existing []tmdl.ParsedColumn) []Change {
	expByName := make(map[string]tmdl.Column, len(expected))
	for _, c := range expected {
		expByName[strings.ToLower(c.DisplayName)] = c
	}
	existByName := make(map[string]tmdl.ParsedColumn, len(existing))
	for _, c := range existing {
		existByName[strings.ToLower(c.DisplayName)] = c
	}

	var changes []Change

	for _, c := range expected {
		key := strings.ToLower(c.DisplayName)
		ex, ok := existByName[key]
		if !ok {
			changes = append(changes, Change{Table: table, Kind: KindNew, Impact: ImpactAdditive, Detail: fmt.Sprintf("column %q", c.DisplayName)})
			continue
		}

		var diffs []string
		if !strings.EqualFold(ex.DataType, c.DataType) {
			diffs = append(diffs, "dataType")
		}
		if !equalFormatString(ex.FormatString, c.FormatString) {
			diffs = append(diffs, "formatString")
		}
		if diffs == nil {
			changes = append(changes, Change{Table: table, Kind: KindPreserve, Impact: ImpactSafe, Detail: fmt.Sprintf("column %q unchanged", c.DisplayName)})
		} else {
			changes = append(changes, Change{Table: table, Kind: KindModified, Impact: ImpactModerate, Detail: fmt.Sprintf("column %q: %s changed", c.DisplayName, strings.Join(diffs, ", "))})
		}
	}

	for _, ex := range existing {
		key := strings.ToLower(ex.DisplayName)
		if _, ok := expByName[key]; ok {
			continue
		}
		if ex.LogicalName == "" {
			// No recognised /// logical_name trivia: user-added, never Removed.
			changes = append(changes, Change{Table: table, Kind: KindPreserve, Impact: ImpactSafe, Detail: fmt.Sprintf("user-added column %q preserved", ex.DisplayName)})
			continue
		}
		changes = append(changes, Change{Table: table, Kind: KindRemoved, Impact: ImpactDestructive, Detail: fmt.Sprintf("column %q", ex.DisplayName)})
	}

	return changes
}

// equalFormatString treats empty and absent as equal, per §4.11.
func equalFormatString(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}

// CompareQuery normalises both partition bodies and compares them
// byte-for-byte, returning a QueryChanged entry when they differ.
func CompareQuery(table string, existingBody, expectedBody string) []Change {
	if NormalizeQuery(existingBody) == NormalizeQuery(expectedBody) {
		return []Change{{Table: table, Kind: KindPreserve, Impact: ImpactSafe, Detail: "query unchanged"}}
	}
	return []Change{{Table: table, Kind: KindQueryChanged, Impact: ImpactModerate, Detail: "partition source changed"}}
}

// CompareRelationships builds the canonical "<fromTable>.<fromCol>→<toTable>.<toCol>"
// string for each side (case-insensitive) and reports the set
// difference. A changed target column is always Removed+New, never
// Modified, per §4.11.
func CompareRelationships(expected []tmdl.Relationship, existing []tmdl.ParsedRelationship) []Change {
	expSet := make(map[string]bool, len(expected))
	for _, r := range expected {
		expSet[strings.ToLower(r.Identity())] = true
	}
	existSet := make(map[string]bool, len(existing))
	for _, r := range existing {
		key := fmt.Sprintf("%s.%s→%s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		existSet[strings.ToLower(key)] = true
	}

	var changes []Change
	for _, r := range expected {
		key := strings.ToLower(r.Identity())
		if existSet[key] {
			changes = append(changes, Change{Kind: KindPreserve, Impact: ImpactSafe, Detail: r.Identity()})
		} else {
			changes = append(changes, Change{Kind: KindNew, Impact: ImpactAdditive, Detail: r.Identity()})
		}
	}
	for _, r := range existing {
		key := fmt.Sprintf("%s.%s→%s.%s", r.FromTable, r.FromColumn, r.ToTable, r.ToColumn)
		if expSet[strings.ToLower(key)] {
			continue
		}
		// Present only on disk: either a user-added relationship
		// (preserved by the merger, not reported Removed) or a genuinely
		// dropped one.
		if r.UserAdded {
			changes = append(changes, Change{Kind: KindPreserve, Impact: ImpactSafe, Detail: "user-added relationship " + key})
		} else {
			changes = append(changes, Change{Kind: KindRemoved, Impact: ImpactDestructive, Detail: key})
		}
	}
	return changes
}

// CompareURL strips a leading "https://" from both sides before
// comparing, per §4.11.
func CompareURL(existingURL, requestURL string) []Change {
	strip := func(s string) string { return strings.TrimPrefix(s, "https://") }
	if strip(existingURL) == strip(requestURL) {
		return []Change{{Kind: KindPreserve, Impact: ImpactSafe, Detail: "DataverseURL unchanged"}}
	}
	return []Change{{Kind: KindModified, Impact: ImpactModerate, Detail: "DataverseURL changed"}}
}

// ConnectionModeChanged reports whether the connection mode differs
// between an apply and the mode recorded in the prior build — this is
// always Destructive (§4.11).
func ConnectionModeChanged(prior, current string) []Change {
	if prior == "" || prior == current {
		return nil
	}
	return []Change{{Kind: KindModified, Impact: ImpactDestructive, Detail: fmt.Sprintf("connection mode changed from %s to %s", prior, current)}}
}
