// Package model defines the data shapes the builder consumes: the
// declarative BuildRequest describing a set of Dataverse tables,
// attributes, relationships, and an optional calendar, plus the
// invariant checks every request must satisfy before a build runs.
package model

import "fmt"

// Role is a table's position in the star schema.
type Role string

const (
	RoleFact      Role = "Fact"
	RoleDimension Role = "Dimension"
)

// AttributeType tags the Dataverse attribute kind. Downstream
// components (Type-Mapper, Query-Emitter, Column-Emitter) switch over
// this exhaustively rather than branching on strings.
type AttributeType string

const (
	AttributeString         AttributeType = "String"
	AttributeMemo           AttributeType = "Memo"
	AttributeInteger        AttributeType = "Integer"
	AttributeBigInt         AttributeType = "BigInt"
	AttributeDecimal        AttributeType = "Decimal"
	AttributeDouble         AttributeType = "Double"
	AttributeMoney          AttributeType = "Money"
	AttributeDateTime       AttributeType = "DateTime"
	AttributeDateOnly       AttributeType = "DateOnly"
	AttributeBoolean        AttributeType = "Boolean"
	AttributeLookup         AttributeType = "Lookup"
	AttributeOwner          AttributeType = "Owner"
	AttributeCustomer       AttributeType = "Customer"
	AttributePicklist       AttributeType = "Picklist"
	AttributeState          AttributeType = "State"
	AttributeStatus         AttributeType = "Status"
	AttributeUniqueIdentifier AttributeType = "UniqueIdentifier"
)

// IsLookupLike reports whether a is one of Lookup/Owner/Customer —
// the three types that resolve through a related table and therefore
// emit a hidden id column plus a visible name column.
func (a AttributeType) IsLookupLike() bool {
	switch a {
	case AttributeLookup, AttributeOwner, AttributeCustomer:
		return true
	default:
		return false
	}
}

// IsChoiceLike reports whether a resolves through a virtual "name"
// attribute carrying a display label (picklist/state/status/boolean).
func (a AttributeType) IsChoiceLike() bool {
	switch a {
	case AttributePicklist, AttributeState, AttributeStatus, AttributeBoolean:
		return true
	default:
		return false
	}
}

// ConnectionMode selects the partition source-expression template.
type ConnectionMode string

const (
	ConnectionTds        ConnectionMode = "Tds"
	ConnectionFabricLink ConnectionMode = "FabricLink"
)

// ViewSpec carries a pre-translated SQL WHERE fragment for a table's
// associated Dataverse view. Translation from a FetchXML filter tree
// happens upstream of the builder (see ViewSqlTranslator); the builder
// treats WhereFragment as opaque text.
type ViewSpec struct {
	WhereFragment string
}

// AttributeSpec describes one Dataverse column on a table.
type AttributeSpec struct {
	LogicalName         string
	DisplayName         string
	SchemaName          string
	Description         string
	AttributeType       AttributeType
	Targets             []string // non-empty only for Lookup/Owner/Customer
	IsRequired           bool
	VirtualAttributeName string // optional; defaults to LogicalName+"name"
}

// ResolvedVirtualName returns the attribute carrying the display label
// for choice/boolean/lookup attributes, defaulting to
// "<logical_name>name" when VirtualAttributeName is unset.
func (a AttributeSpec) ResolvedVirtualName() string {
	if a.VirtualAttributeName != "" {
		return a.VirtualAttributeName
	}
	return a.LogicalName + "name"
}

// TableSpec describes one table in the model.
type TableSpec struct {
	LogicalName            string
	DisplayName             string
	SchemaName              string
	PrimaryIDAttribute      string
	PrimaryNameAttribute    string
	Role                    Role
	HasStateCode            bool
	Attributes              []AttributeSpec
	View                     *ViewSpec
	RequiredLookupColumns    []string
}

// FindAttribute returns the attribute with the given logical name, if
// declared on the table.
func (t TableSpec) FindAttribute(logicalName string) (AttributeSpec, bool) {
	for _, a := range t.Attributes {
		if a.LogicalName == logicalName {
			return a, true
		}
	}
	return AttributeSpec{}, false
}

// RelationshipSpec describes one relationship between two tables.
type RelationshipSpec struct {
	SourceTable                string
	SourceAttribute            string
	TargetTable                string
	IsActive                   bool
	// IsSnowflake places the relationship after the non-snowflake ones
	// in relationships.tmdl and also turns on relyOnReferentialIntegrity,
	// whether or not the source attribute is required in Dataverse.
	IsSnowflake                bool
	AssumeReferentialIntegrity bool
}

// DateTableConfig configures the calendar table and any DateTime
// attributes that get wrapped to a date-only projection so they can
// relate to it.
type DateTableConfig struct {
	PrimaryDateTable  string
	PrimaryDateField  string
	UTCOffsetHours    float64
	StartYear         int
	EndYear           int
	WrappedFields     []TableField
}

// TableField names one (table, field) pair.
type TableField struct {
	Table string
	Field string
}

// IsWrapped reports whether (table, field) appears in WrappedFields.
func (d DateTableConfig) IsWrapped(table, field string) bool {
	for _, f := range d.WrappedFields {
		if f.Table == table && f.Field == field {
			return true
		}
	}
	return false
}

// BuildRequest is the single input value the builder consumes.
type BuildRequest struct {
	ProjectName    string
	OutputFolder   string
	TemplateFolder string
	DataverseURL   string
	Tables         []TableSpec
	Relationships  []RelationshipSpec
	DateConfig     *DateTableConfig
	ConnectionMode ConnectionMode
}

// FindTable returns the table with the given logical name.
func (r BuildRequest) FindTable(logicalName string) (TableSpec, bool) {
	for _, t := range r.Tables {
		if t.LogicalName == logicalName {
			return t, true
		}
	}
	return TableSpec{}, false
}

// Validate checks the invariants spec'd for a BuildRequest. It never
// mutates r; a violation is returned as an error and the orchestrator
// must abort before any write (InvariantViolation, see error kinds).
func (r BuildRequest) Validate() error {
	tableByName := make(map[string]TableSpec, len(r.Tables))
	for _, t := range r.Tables {
		if t.PrimaryIDAttribute == "" {
			return fmt.Errorf("model: table %q has no primary_id_attribute", t.LogicalName)
		}
		tableByName[t.LogicalName] = t
	}

	// Invariant 1: relationship endpoints are declared tables, and the
	// source attribute is either a declared attribute or registered in
	// required_lookup_columns.
	for _, rel := range r.Relationships {
		src, ok := tableByName[rel.SourceTable]
		if !ok {
			return fmt.Errorf("model: relationship source table %q is not in tables", rel.SourceTable)
		}
		if _, ok := tableByName[rel.TargetTable]; !ok {
			return fmt.Errorf("model: relationship target table %q is not in tables", rel.TargetTable)
		}
		if _, declared := src.FindAttribute(rel.SourceAttribute); !declared {
			if !containsString(src.RequiredLookupColumns, rel.SourceAttribute) {
				return fmt.Errorf("model: relationship source attribute %q on table %q is neither a declared attribute nor a required lookup column", rel.SourceAttribute, rel.SourceTable)
			}
		}
	}

	// Invariant 2: at most one active relationship per ordered
	// (source, target) pair.
	activeSeen := make(map[[2]string]bool)
	for _, rel := range r.Relationships {
		if !rel.IsActive {
			continue
		}
		key := [2]string{rel.SourceTable, rel.TargetTable}
		if activeSeen[key] {
			return fmt.Errorf("model: more than one active relationship between %q and %q", rel.SourceTable, rel.TargetTable)
		}
		activeSeen[key] = true
	}

	// Invariant 5: the date table, if configured, must be a declared table.
	if r.DateConfig != nil {
		if _, ok := tableByName[r.DateConfig.PrimaryDateTable]; !ok {
			return fmt.Errorf("model: date_config.primary_date_table %q is not in tables", r.DateConfig.PrimaryDateTable)
		}
	}

	return nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
