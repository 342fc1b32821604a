package orchestrator

import (
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/guidgen"
	"github.com/pinggolf/pbi-tmdl-builder/internal/merge"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/sqlgen"
	"github.com/pinggolf/pbi-tmdl-builder/internal/tmdl"
)

// builtTable is one table's in-memory emission result, plus enough of
// its prior-state lineage to drive both the differ and the Writing
// phase.
type builtTable struct {
	spec                  model.TableSpec
	table                 tmdl.Table
	content               string
	expectedPartitionBody string
	renamedFrom           string // prior on-disk path, "" unless this table was renamed (§4.12 item 5)
}

// builtModel is everything the Emitting phase produces in memory,
// before any diffing or writing happens.
type builtModel struct {
	tables                  []builtTable
	relationships           []tmdl.Relationship // expected set, in §4.7 order
	preservedRelationships  []tmdl.Relationship // user-added, carried over verbatim
	modelContent            string
	dateTableNeeded         bool
}

// buildInMemory runs the Column/Table/Relationship/Model emitters
// against req, carrying over lineage tags, user measures, preserved
// column metadata, and user-added relationships from existing. No
// filesystem writes happen here — this is the "Emitting" state of
// §4.13, shared by both Analyze and Apply.
func buildInMemory(req model.BuildRequest, l layout, existing existingState) (builtModel, error) {
	emitter := sqlgen.NewEmitter(req)

	displayNameOf := func(logicalName string) string {
		if t, ok := req.FindTable(logicalName); ok {
			return t.DisplayName
		}
		return logicalName
	}
	primaryIDOf := func(logicalName string) string {
		if t, ok := req.FindTable(logicalName); ok {
			return t.PrimaryIDAttribute
		}
		return ""
	}

	var out builtModel
	for _, t := range req.Tables {
		bt, err := buildOneTable(t, req, l, existing, emitter)
		if err != nil {
			return builtModel{}, err
		}
		out.tables = append(out.tables, bt)
	}

	guidLookup := merge.RelationshipGUIDLookup(existing.relationships)
	out.relationships = tmdl.BuildRelationships(req, displayNameOf, primaryIDOf, guidLookup)
	out.preservedRelationships = merge.PreserveUserRelationships(out.relationships, existing.relationships)

	names := make([]string, len(req.Tables))
	for i, t := range req.Tables {
		names[i] = t.DisplayName
	}
	out.modelContent = tmdl.EmitModel(tmdl.ModelFile{
		UserTableDisplayNames: names,
		HasDateTable:          req.DateConfig != nil,
	})
	out.dateTableNeeded = req.DateConfig != nil && !existing.dateTableExists

	return out, nil
}

func buildOneTable(t model.TableSpec, req model.BuildRequest, l layout, existing existingState, emitter *sqlgen.Emitter) (builtTable, error) {
	prior, hasPrior := existing.byLogicalName[t.LogicalName]

	var lineageLookup tmdl.LineageLookup
	var tableLineage string
	var measures []tmdl.Measure
	if hasPrior {
		lineageLookup = merge.LineageLookup(prior.parsed)
		tableLineage = prior.parsed.LineageTag
		measures = merge.ExtractUserMeasures(t.DisplayName, prior.parsed)
	}
	if tableLineage == "" {
		tableLineage = guidgen.New()
	}

	cols := tmdl.BuildColumns(t, req.DateConfig, lineageLookup)
	if hasPrior {
		existingByDisplay := make(map[string]tmdl.ParsedColumn, len(prior.parsed.Columns))
		for _, ec := range prior.parsed.Columns {
			existingByDisplay[strings.ToLower(ec.DisplayName)] = ec
		}
		for i, c := range cols {
			if ec, ok := existingByDisplay[strings.ToLower(c.DisplayName)]; ok {
				cols[i] = merge.PreserveColumnMetadata(c, ec)
			}
		}
	}

	source := emitter.BuildPartitionSource(t)
	table := tmdl.Table{
		LogicalName:     t.LogicalName,
		DisplayName:     t.DisplayName,
		LineageTag:      tableLineage,
		Columns:         cols,
		Measures:        measures,
		PartitionSource: source,
	}

	bt := builtTable{
		spec:                  t,
		table:                 table,
		content:               tmdl.EmitTable(table),
		expectedPartitionBody: tmdl.PartitionBodyText(source),
	}

	if hasPrior {
		expectedPath := l.tableFile(t.DisplayName)
		if prior.path != expectedPath {
			bt.renamedFrom = prior.path
		}
	}

	return bt, nil
}
