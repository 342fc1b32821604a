// Package orchestrator drives the pipeline described in spec.md §4.13:
// it wires the Type-Mapper/Query-Emitter/Column-Emitter/Table-Emitter/
// Relationship-Emitter/Model-Emitter/Template-Cloner/Differ/Merger
// packages together into the two invocation modes — Analyze (read +
// emit in memory + diff + report, no writes) and Apply (optional
// backup, then write the emitted/merged TMDL tree to disk) — behind
// one entry point, per §6 ("one entry point build(request, mode)").
// The phased-pipeline-plus-context-cancellation shape follows the
// teacher's internal/workers/snapshot_worker.go (a multi-stage job
// with cooperative cancellation checkpoints, progress callbacks, and a
// single synchronous driver function), generalised from a snapshot
// refresh to a TMDL build.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pinggolf/pbi-tmdl-builder/internal/clone"
	"github.com/pinggolf/pbi-tmdl-builder/internal/differ"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/progress"
	"github.com/pinggolf/pbi-tmdl-builder/internal/tmdl"
)

// Mode selects which half of the state machine in §4.13 a Build call
// runs.
type Mode string

const (
	ModeAnalyze Mode = "Analyze"
	ModeApply   Mode = "Apply"
)

// ErrCancelled wraps ctx.Err() when the host's cancellation token
// fires at one of the three checkpoints §5 defines.
var ErrCancelled = errors.New("orchestrator: build cancelled")

// ApplyOptions configures an Apply run. It has no effect under
// ModeAnalyze.
type ApplyOptions struct {
	CreateBackup bool
}

// Result is what Build returns. ChangeSet is populated for both modes;
// Applied, BackupPath and BackupWarning are only meaningful after a
// ModeApply run that reached the Writing phase.
type Result struct {
	ChangeSet     differ.ChangeSet
	Applied       bool
	BackupPath    string
	BackupWarning string
}

// Build runs the state machine in §4.13 for req under mode. It never
// panics across its public boundary — every failure, including an
// InvariantViolation, is returned as an error value (§7: "errors are
// values"). sink may be nil.
func Build(ctx context.Context, req model.BuildRequest, mode Mode, opts ApplyOptions, sink progress.Sink) (Result, error) {
	progress.Emit(sink, "Idle", "build starting")

	if err := req.Validate(); err != nil {
		return Result{}, fmt.Errorf("orchestrator: invariant violation: %w", err)
	}

	l := newLayout(req.OutputFolder, req.ProjectName)

	var result Result
	if mode == ModeApply && opts.CreateBackup && priorBuildExists(l) {
		progress.Emit(sink, "Backing Up", l.pbipRoot)
		path, err := backupFolder(l.pbipRoot, time.Now())
		if err != nil {
			// BackupFailed is non-fatal per §7: warning, build continues.
			result.BackupWarning = err.Error()
		} else {
			result.BackupPath = path
		}
	}

	if err := checkCancel(ctx); err != nil {
		return result, err
	}

	progress.Emit(sink, "ReadingExisting", l.tablesDir)
	existing, err := readExisting(l)
	if err != nil {
		return result, err
	}

	progress.Emit(sink, "Emitting", "building tables, relationships, and model in memory")
	built, err := buildInMemory(req, l, existing)
	if err != nil {
		return result, err
	}

	progress.Emit(sink, "Diffing", "comparing generated output to prior state")
	result.ChangeSet = diffAgainstExisting(req, existing, built)

	if mode == ModeAnalyze {
		progress.Emit(sink, "Reporting", "analyze-only, halting before any write")
		return result, nil
	}

	if err := checkCancel(ctx); err != nil {
		return result, err
	}

	// Merging: buildInMemory already spliced preserved measures, column
	// metadata, lineage tags, and user-added relationships into built —
	// there is nothing further to do here beyond the state-machine
	// bookkeeping the progress sink reports.
	progress.Emit(sink, "Merging", "preserved user content spliced into emitted files")

	progress.Emit(sink, "Writing", l.pbipRoot)
	if err := write(ctx, l, req, existing, built); err != nil {
		return result, err
	}

	progress.Emit(sink, "Verifying", "checking required project files exist")
	if err := verify(l, req); err != nil {
		return result, err
	}

	result.Applied = true
	progress.Emit(sink, "Idle", "build complete")
	return result, nil
}

func checkCancel(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	default:
		return nil
	}
}

// write performs the Writing phase: clone the template on a genuinely
// first build, then (re)write model.tmdl, expressions.tmdl,
// relationships.tmdl, every table file, and the Date table when
// needed. Each file write is preceded by a cancellation checkpoint
// (§5's third checkpoint, "before each file write").
func write(ctx context.Context, l layout, req model.BuildRequest, existing existingState, built builtModel) error {
	if !priorBuildExists(l) {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		if err := clone.Clone(req.TemplateFolder, l.pbipRoot, req.ProjectName); err != nil {
			return fmt.Errorf("orchestrator: cloning template: %w", err)
		}
	}

	if err := os.MkdirAll(l.tablesDir, 0o755); err != nil {
		return fmt.Errorf("orchestrator: creating %s: %w", l.tablesDir, err)
	}

	if err := checkCancel(ctx); err != nil {
		return err
	}
	if err := tmdl.WriteFile(l.modelFile, built.modelContent); err != nil {
		return fmt.Errorf("orchestrator: writing model.tmdl: %w", err)
	}

	if err := checkCancel(ctx); err != nil {
		return err
	}
	if err := writeExpressions(l, req, existing); err != nil {
		return err
	}

	allRels := append(append([]tmdl.Relationship{}, built.relationships...), built.preservedRelationships...)
	if err := checkCancel(ctx); err != nil {
		return err
	}
	if err := tmdl.WriteFile(l.relationshipsFile, tmdl.EmitRelationships(allRels)); err != nil {
		return fmt.Errorf("orchestrator: writing relationships.tmdl: %w", err)
	}

	for _, bt := range built.tables {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		destPath := l.tableFile(bt.table.DisplayName)
		if err := tmdl.WriteFile(destPath, bt.content); err != nil {
			return fmt.Errorf("orchestrator: writing %s: %w", destPath, err)
		}
		if bt.renamedFrom != "" && bt.renamedFrom != destPath {
			if err := os.Remove(bt.renamedFrom); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("orchestrator: removing renamed file %s: %w", bt.renamedFrom, err)
			}
		}
	}

	if built.dateTableNeeded {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		if err := writeDateTable(l, req); err != nil {
			return err
		}
	}

	return nil
}

func writeExpressions(l layout, req model.BuildRequest, existing existingState) error {
	base := existing.expressionsContent
	if base == "" {
		data, err := os.ReadFile(l.expressionsFile)
		if err != nil {
			return fmt.Errorf("orchestrator: reading cloned expressions.tmdl: %w", err)
		}
		base = string(data)
	}
	// FabricSQLEndpoint/FabricLakehouse are Power Query parameters a
	// report author fills in from Power BI Desktop after generation;
	// BuildRequest carries no value for them, so the builder only
	// ensures the expressions exist with an empty default.
	rewritten := tmdl.RewriteExpressions(base, req.DataverseURL, req.ConnectionMode, "", "")
	return tmdl.WriteFile(l.expressionsFile, rewritten)
}

func writeDateTable(l layout, req model.BuildRequest) error {
	templatePath := filepath.Join(req.TemplateFolder, "Template.SemanticModel", "definition", "DateTable.tmdl")
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("orchestrator: reading DateTable.tmdl template (TemplateMissing): %w", err)
	}
	content := tmdl.EmitDateTable(string(data), *req.DateConfig)
	return tmdl.WriteFile(l.dateTableFile, content)
}

// verify checks the three files §4.13's Verifying state requires and
// restores any that are missing from the template. A template that is
// itself missing the source file is a fatal TemplateMissing (§7).
func verify(l layout, req model.BuildRequest) error {
	checks := []struct{ path, templateRel string }{
		{l.pbipFile, "Template.pbip"},
		{l.platformFile, filepath.Join("Template.SemanticModel", ".platform")},
		{l.pbismFile, filepath.Join("Template.SemanticModel", "definition.pbism")},
	}
	for _, c := range checks {
		if _, err := os.Stat(c.path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("orchestrator: verifying %s: %w", c.path, err)
		}

		if err := clone.RestoreFile(req.TemplateFolder, l.pbipRoot, req.ProjectName, c.templateRel); err != nil {
			return fmt.Errorf("orchestrator: %s missing and template cannot restore it: %w", c.path, err)
		}
	}
	return nil
}

// diffAgainstExisting implements §4.11's comparison across every
// dimension the Differ owns, plus the connection-mode check S6
// describes ("flags every table's QueryChanged ... classifies the
// overall change as Destructive").
func diffAgainstExisting(req model.BuildRequest, existing existingState, built builtModel) differ.ChangeSet {
	var cs differ.ChangeSet

	connectionChanged := existing.priorConnectionMode != "" && existing.priorConnectionMode != req.ConnectionMode

	for _, bt := range built.tables {
		prior, hasPrior := existing.byLogicalName[bt.spec.LogicalName]

		switch {
		case !hasPrior:
			cs.ColumnChanges = append(cs.ColumnChanges, differ.Change{
				Table: bt.table.DisplayName, Kind: differ.KindNew, Impact: differ.ImpactAdditive,
				Detail: fmt.Sprintf("table %q", bt.table.DisplayName),
			})
		case bt.renamedFrom != "":
			cs.ColumnChanges = append(cs.ColumnChanges, differ.Change{
				Table: bt.table.DisplayName, Kind: differ.KindRename, Impact: differ.ImpactModerate,
				Detail: fmt.Sprintf("table renamed from file %q", filepath.Base(bt.renamedFrom)),
			})
		}

		var existingCols []tmdl.ParsedColumn
		var existingBody string
		if hasPrior {
			existingCols = prior.parsed.Columns
			existingBody = prior.parsed.PartitionBody
		}
		cs.ColumnChanges = append(cs.ColumnChanges, differ.CompareColumns(bt.table.DisplayName, bt.table.Columns, existingCols)...)

		if connectionChanged {
			cs.QueryChanges = append(cs.QueryChanges, differ.Change{
				Table: bt.table.DisplayName, Kind: differ.KindQueryChanged, Impact: differ.ImpactDestructive,
				Detail: "connection mode changed",
			})
		} else {
			cs.QueryChanges = append(cs.QueryChanges, differ.CompareQuery(bt.table.DisplayName, existingBody, bt.expectedPartitionBody)...)
		}

		for _, m := range bt.table.Measures {
			cs.ColumnChanges = append(cs.ColumnChanges, differ.Change{
				Table: bt.table.DisplayName, Kind: differ.KindPreserve, Impact: differ.ImpactSafe,
				Detail: fmt.Sprintf("measure %q preserved", m.Name),
			})
		}
	}

	for _, foreign := range existing.foreignFiles {
		cs.Warnings = append(cs.Warnings, differ.Change{
			Kind: differ.KindWarning, Impact: differ.ImpactSafe,
			Detail: fmt.Sprintf("foreign file %q left untouched", foreign),
		})
	}

	cs.RelationshipChanges = append(cs.RelationshipChanges, differ.CompareRelationships(built.relationships, existing.relationships)...)

	cs.URLChanges = append(cs.URLChanges, differ.CompareURL(existing.dataverseURL, req.DataverseURL)...)
	if connectionChanged {
		cs.URLChanges = append(cs.URLChanges, differ.ConnectionModeChanged(string(existing.priorConnectionMode), string(req.ConnectionMode))...)
	}

	return cs
}
