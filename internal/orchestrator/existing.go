package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/tmdl"
)

// existingTableFile pairs a parsed table file with the on-disk path it
// was read from, so a rename (§4.12 item 5) can locate and remove the
// stale file once its content has migrated to the new one.
type existingTableFile struct {
	path   string
	parsed tmdl.ParsedTableFile
}

// existingState is everything the ReadingExisting phase recovers from
// a prior build, keyed the way the differ and merger need it.
type existingState struct {
	// byLogicalName indexes every parsed, non-foreign table file by its
	// "/// Source: <logical_name>" trivia, regardless of what file it
	// currently lives under — this is what lets a table rename be
	// detected without the caller needing to know the old display name.
	byLogicalName map[string]existingTableFile
	foreignFiles  []string

	relationships []tmdl.ParsedRelationship

	expressionsContent string
	dataverseURL        string
	priorConnectionMode model.ConnectionMode // "" when no prior build existed

	dateTableExists bool
}

// readExisting walks l.tablesDir and reads relationships.tmdl /
// expressions.tmdl, tolerating a completely absent output tree (first
// build) by returning a zero-value existingState.
func readExisting(l layout) (existingState, error) {
	state := existingState{byLogicalName: make(map[string]existingTableFile)}

	entries, err := os.ReadDir(l.tablesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return state, fmt.Errorf("orchestrator: reading %s: %w", l.tablesDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".tmdl") {
			continue
		}
		path := filepath.Join(l.tablesDir, entry.Name())
		if entry.Name() == "Date.tmdl" {
			state.dateTableExists = true
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return state, fmt.Errorf("orchestrator: reading %s: %w", path, err)
		}
		parsed := tmdl.ParseTableFile(string(data))
		if parsed.Foreign {
			state.foreignFiles = append(state.foreignFiles, path)
			continue
		}
		if parsed.SourceLogicalName == "" {
			// Parseable "table ..." header but no recognised Source
			// trivia: not one of ours, treated as foreign (§4.10/§7
			// ForeignFile) rather than guessed at.
			state.foreignFiles = append(state.foreignFiles, path)
			continue
		}
		state.byLogicalName[parsed.SourceLogicalName] = existingTableFile{path: path, parsed: parsed}
	}

	if data, err := os.ReadFile(l.relationshipsFile); err == nil {
		state.relationships = tmdl.ParseRelationshipsFile(string(data))
	} else if !os.IsNotExist(err) {
		return state, fmt.Errorf("orchestrator: reading %s: %w", l.relationshipsFile, err)
	}

	if data, err := os.ReadFile(l.expressionsFile); err == nil {
		state.expressionsContent = string(data)
		state.dataverseURL = tmdl.ExtractDataverseURL(state.expressionsContent)
		if tmdl.HasFabricExpressions(state.expressionsContent) {
			state.priorConnectionMode = model.ConnectionFabricLink
		} else if state.dataverseURL != "" {
			state.priorConnectionMode = model.ConnectionTds
		}
	} else if !os.IsNotExist(err) {
		return state, fmt.Errorf("orchestrator: reading %s: %w", l.expressionsFile, err)
	}

	return state, nil
}

// priorBuildExists reports whether the semantic model directory was
// produced by an earlier build, the signal the Writing phase uses to
// decide whether the template needs cloning at all.
func priorBuildExists(l layout) bool {
	_, err := os.Stat(l.semanticModelDir)
	return err == nil
}
