package tmdl

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/guidgen"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/quoting"
)

// Relationship is the TMDL relationship-block model.
type Relationship struct {
	GUID string

	FromTableDisplay  string
	FromColumn        string
	ToTableDisplay    string
	ToColumn          string

	IsActive                   bool
	RelyOnReferentialIntegrity bool

	// UserAdded marks a relationship preserved from disk that the
	// current expected set doesn't recognise (§4.12 item 2); it is
	// re-emitted unchanged with a leading comment.
	UserAdded bool
}

// Identity returns the canonical (fromTable, fromColumn, toTable,
// toColumn) tuple used both for matching during an update and as the
// differ's comparison key (case preserved; callers needing
// case-insensitive comparison should lower it themselves).
func (r Relationship) Identity() string {
	return fmt.Sprintf("%s.%s→%s.%s", r.FromTableDisplay, r.FromColumn, r.ToTableDisplay, r.ToColumn)
}

// Emit renders the relationship block.
func (r Relationship) Emit() string {
	var b strings.Builder
	if r.UserAdded {
		b.WriteString("/// User-added relationship\n")
	}
	fmt.Fprintf(&b, "relationship %s\n", r.GUID)
	if r.RelyOnReferentialIntegrity {
		b.WriteString("\trelyOnReferentialIntegrity\n")
	}
	if !r.IsActive {
		b.WriteString("\tisActive: false\n")
	}
	fmt.Fprintf(&b, "\tfromColumn: %s.%s\n", quoting.Quote(r.FromTableDisplay), r.FromColumn)
	fmt.Fprintf(&b, "\ttoColumn: %s.%s\n", quoting.Quote(r.ToTableDisplay), r.ToColumn)
	return b.String()
}

// RelationshipGUIDLookup resolves a prior relationship's GUID by its
// identity tuple, returning "" when unmatched (a fresh GUID is then
// minted).
type RelationshipGUIDLookup func(identity string) string

// BuildRelationships constructs the ordered relationship set for a
// BuildRequest per §4.7: fact→dimension relationships in declared
// order, then snowflake relationships, then the implicit Date
// relationship last. displayNameOf resolves a table's display name and
// primaryIDOf its primary id attribute.
func BuildRelationships(
	req model.BuildRequest,
	displayNameOf func(logicalTable string) string,
	primaryIDOf func(logicalTable string) string,
	guidOf RelationshipGUIDLookup,
) []Relationship {
	if guidOf == nil {
		guidOf = func(string) string { return "" }
	}
	resolve := func(identity string) string {
		if g := guidOf(identity); g != "" {
			return g
		}
		return guidgen.New()
	}

	var plain, snowflake []Relationship
	for _, rel := range req.Relationships {
		r := Relationship{
			FromTableDisplay:           displayNameOf(rel.SourceTable),
			FromColumn:                 rel.SourceAttribute,
			ToTableDisplay:             displayNameOf(rel.TargetTable),
			ToColumn:                   primaryIDOf(rel.TargetTable),
			IsActive:                   rel.IsActive,
			RelyOnReferentialIntegrity: rel.IsSnowflake || rel.AssumeReferentialIntegrity,
		}
		r.GUID = resolve(r.Identity())
		if rel.IsSnowflake {
			snowflake = append(snowflake, r)
		} else {
			plain = append(plain, r)
		}
	}

	out := append(plain, snowflake...)

	if req.DateConfig != nil && req.DateConfig.PrimaryDateTable != "" {
		dateRel := Relationship{
			FromTableDisplay: displayNameOf(req.DateConfig.PrimaryDateTable),
			FromColumn:       dateFieldDisplayName(req, displayNameOf),
			ToTableDisplay:   "Date",
			ToColumn:         "Date",
			IsActive:         true,
		}
		dateRel.GUID = resolve(dateRel.Identity())
		out = append(out, dateRel)
	}

	return out
}

// dateFieldDisplayName resolves the display name of the date-host
// table's primary date field, falling back to the raw field name.
func dateFieldDisplayName(req model.BuildRequest, displayNameOf func(string) string) string {
	t, ok := req.FindTable(req.DateConfig.PrimaryDateTable)
	if !ok {
		return req.DateConfig.PrimaryDateField
	}
	if a, ok := t.FindAttribute(req.DateConfig.PrimaryDateField); ok && a.DisplayName != "" {
		return a.DisplayName
	}
	return defaultDisplayName(req.DateConfig.PrimaryDateField)
}

// EmitRelationships renders the full relationships.tmdl body.
func EmitRelationships(rels []Relationship) string {
	var b strings.Builder
	for _, r := range rels {
		b.WriteString(r.Emit())
		b.WriteString("\n")
	}
	return b.String()
}
