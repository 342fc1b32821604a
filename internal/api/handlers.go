package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/pinggolf/pbi-tmdl-builder/internal/differ"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/orchestrator"
)

// analyzeRequest is the POST /api/builds/analyze body: a BuildRequest,
// nothing else — Analyze never writes, so it has no backup option.
type analyzeRequest struct {
	Request model.BuildRequest `json:"request"`
}

// applyRequest is the POST /api/builds/apply body.
type applyRequest struct {
	Request      model.BuildRequest `json:"request"`
	CreateBackup bool               `json:"create_backup"`
}

type buildResponse struct {
	Applied       bool               `json:"applied"`
	BackupPath    string             `json:"backup_path,omitempty"`
	BackupWarning string             `json:"backup_warning,omitempty"`
	ChangeSet     changeSetResponse  `json:"change_set"`
}

type changeSetResponse struct {
	Clean               bool     `json:"clean"`
	ColumnChanges        []change `json:"column_changes,omitempty"`
	RelationshipChanges []change `json:"relationship_changes,omitempty"`
	QueryChanges        []change `json:"query_changes,omitempty"`
	URLChanges          []change `json:"url_changes,omitempty"`
	Warnings            []change `json:"warnings,omitempty"`
}

type change struct {
	Table  string `json:"table,omitempty"`
	Kind   string `json:"kind"`
	Impact string `json:"impact"`
	Detail string `json:"detail"`
}

func toChangeSetResponse(result orchestrator.Result) changeSetResponse {
	cs := result.ChangeSet
	return changeSetResponse{
		Clean:               cs.IsClean(),
		ColumnChanges:       changesFrom(cs.ColumnChanges),
		RelationshipChanges: changesFrom(cs.RelationshipChanges),
		QueryChanges:        changesFrom(cs.QueryChanges),
		URLChanges:          changesFrom(cs.URLChanges),
		Warnings:            changesFrom(cs.Warnings),
	}
}

func changesFrom(in []differ.Change) []change {
	if len(in) == 0 {
		return nil
	}
	out := make([]change, len(in))
	for i, c := range in {
		out[i] = change{Table: c.Table, Kind: string(c.Kind), Impact: string(c.Impact), Detail: c.Detail}
	}
	return out
}

var errTooManyApplies = errors.New("api: too many apply requests for this output folder")

// handleAnalyze runs ModeAnalyze and reports the resulting ChangeSet.
// It is serialised per output folder but not rate-limited — Analyze
// makes no writes, so there is nothing destructive to throttle.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var result orchestrator.Result
	err := s.locks.WithLock(req.Request.OutputFolder, func() error {
		var buildErr error
		result, buildErr = orchestrator.Build(r.Context(), req.Request, orchestrator.ModeAnalyze, orchestrator.ApplyOptions{}, nil)
		return buildErr
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse{
		Applied:       result.Applied,
		BackupPath:    result.BackupPath,
		BackupWarning: result.BackupWarning,
		ChangeSet:     toChangeSetResponse(result),
	})
}

// handleApply runs ModeApply, throttled per output folder per
// cfg.BuildApplyRateLimit/Burst — writing to disk is the operation
// spec.md §5 wants a host able to rate-limit, unlike a read-only
// Analyze.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !s.rateLimiter.Allow(req.Request.OutputFolder) {
		writeError(w, http.StatusTooManyRequests, errTooManyApplies)
		return
	}

	var result orchestrator.Result
	err := s.locks.WithLock(req.Request.OutputFolder, func() error {
		var buildErr error
		result, buildErr = orchestrator.Build(r.Context(), req.Request, orchestrator.ModeApply, orchestrator.ApplyOptions{CreateBackup: req.CreateBackup}, nil)
		return buildErr
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse{
		Applied:       result.Applied,
		BackupPath:    result.BackupPath,
		BackupWarning: result.BackupWarning,
		ChangeSet:     toChangeSetResponse(result),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
