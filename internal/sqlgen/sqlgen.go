// Package sqlgen implements the Query-Emitter: the select-list and
// WHERE-clause construction for a table's partition, plus the
// Tds/FabricLink source-expression templates that wrap the generated
// SQL in a Power Query partition body. The shape (a builder struct with
// one Build*Query-style method per concern, assembling field lists with
// fmt.Sprintf/strings.Join) mirrors compass.QueryBuilder in the teacher
// repo, generalised from M3 field catalogs to Dataverse attribute
// metadata.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
)

// SelectField is one projected column in a partition's SQL select
// list: either a bare "Base.<col>" reference or a computed expression
// (the DateTime-wrap CAST) carrying its own alias.
type SelectField struct {
	Expr  string // the full "Base.x" or "CAST(...)" text
	Alias string // logical column name this field ultimately serves
}

// String renders the field as it appears in the SELECT list.
func (f SelectField) String() string {
	return f.Expr
}

// Emitter builds partition SQL for one BuildRequest.
type Emitter struct {
	req model.BuildRequest
}

// NewEmitter returns an Emitter bound to req.
func NewEmitter(req model.BuildRequest) *Emitter {
	return &Emitter{req: req}
}

// BuildSelectList returns the ordered, de-duplicated select list for
// table t, per §4.3:
//  1. Base.<primary_id_attribute>
//  2. required_lookup_columns not already emitted
//  3. declared attributes in order, skipping already-emitted and statecode
func (e *Emitter) BuildSelectList(t model.TableSpec) []SelectField {
	emitted := make(map[string]bool)
	var fields []SelectField

	emit := func(logicalName, expr string) {
		if emitted[logicalName] {
			return
		}
		emitted[logicalName] = true
		fields = append(fields, SelectField{Expr: expr, Alias: logicalName})
	}

	emit(t.PrimaryIDAttribute, fmt.Sprintf("Base.%s", t.PrimaryIDAttribute))

	for _, c := range t.RequiredLookupColumns {
		emit(c, fmt.Sprintf("Base.%s", c))
	}

	for _, a := range t.Attributes {
		if emitted[a.LogicalName] || a.LogicalName == "statecode" {
			continue
		}

		switch {
		case a.AttributeType.IsLookupLike():
			emit(a.LogicalName, fmt.Sprintf("Base.%s", a.LogicalName))
			nameCol := a.LogicalName + "name"
			emit(nameCol, fmt.Sprintf("Base.%s", nameCol))
		case a.AttributeType.IsChoiceLike():
			virtual := a.ResolvedVirtualName()
			emit(virtual, fmt.Sprintf("Base.%s", virtual))
		case a.AttributeType == model.AttributeDateTime && e.isWrapped(t.LogicalName, a.LogicalName):
			offset := e.req.DateConfig.UTCOffsetHours
			emit(a.LogicalName, fmt.Sprintf("CAST(DATEADD(hour, %s, Base.%s) AS DATE) AS %s", formatOffset(offset), a.LogicalName, a.LogicalName))
		default:
			emit(a.LogicalName, fmt.Sprintf("Base.%s", a.LogicalName))
		}
	}

	return fields
}

func (e *Emitter) isWrapped(table, field string) bool {
	if e.req.DateConfig == nil {
		return false
	}
	return e.req.DateConfig.IsWrapped(table, field)
}

func formatOffset(hours float64) string {
	if hours == float64(int64(hours)) {
		return fmt.Sprintf("%d", int64(hours))
	}
	return fmt.Sprintf("%g", hours)
}

// BuildWhereClause returns the WHERE fragment for table t: a
// statecode predicate (if HasStateCode) ANDed with the table's view
// filter, if any. Returns "" when neither applies.
func (e *Emitter) BuildWhereClause(t model.TableSpec) string {
	var clauses []string
	if t.HasStateCode {
		clauses = append(clauses, "Base.statecode = 0")
	}
	if t.View != nil && strings.TrimSpace(t.View.WhereFragment) != "" {
		clauses = append(clauses, t.View.WhereFragment)
	}
	return strings.Join(clauses, "\n  AND ")
}

// BuildSelectSQL assembles the full SELECT statement for table t's
// partition, using schemaRef as the source table reference aliased to
// Base.
func (e *Emitter) BuildSelectSQL(t model.TableSpec) string {
	fields := e.BuildSelectList(t)
	rendered := make([]string, len(fields))
	for i, f := range fields {
		rendered[i] = f.Expr
	}

	schemaRef := t.SchemaName
	if schemaRef == "" {
		schemaRef = t.LogicalName
	}

	where := e.BuildWhereClause(t)
	query := fmt.Sprintf("SELECT %s\nFROM %s AS Base", strings.Join(rendered, ", "), schemaRef)
	if where != "" {
		query += "\nWHERE " + where
	}
	return query
}

// metadataJoinTable names the Dataverse lakehouse metadata table used
// to resolve a choice/status column's label under FabricLink mode.
func metadataJoinTable(a model.AttributeSpec) string {
	switch a.AttributeType {
	case model.AttributeState, model.AttributeStatus:
		return "StatusMetadata"
	case model.AttributePicklist:
		return "OptionsetMetadata"
	default:
		return "GlobalOptionsetMetadata"
	}
}

// BuildPartitionSource renders the Power Query partition source
// expression for table t, per the connection mode on the bound
// request.
func (e *Emitter) BuildPartitionSource(t model.TableSpec) string {
	sql := e.BuildSelectSQL(t)

	switch e.req.ConnectionMode {
	case model.ConnectionFabricLink:
		var joins strings.Builder
		for _, a := range t.Attributes {
			if !a.AttributeType.IsChoiceLike() {
				continue
			}
			fmt.Fprintf(&joins, "\n\t\t\t\tleft outer join %s on %s.OptionSetValue = Base.%s",
				metadataJoinTable(a), metadataJoinTable(a), a.ResolvedVirtualName())
		}
		return fmt.Sprintf(
			"Sql.Database(FabricSQLEndpoint, FabricLakehouse){[Schema=\"dbo\", Item=\"%s\"]}[Data]%s",
			t.LogicalName, joins.String(),
		)
	default: // Tds
		escaped := strings.ReplaceAll(sql, `"`, `""`)
		return fmt.Sprintf(
			"Value.NativeQuery(CommonDataService.Database(%q, [CreateNavigationProperties=false]), \"%s\", null, [EnableFolding=true])",
			e.req.DataverseURL, escaped,
		)
	}
}
