package tmdl

import (
	"fmt"
	"regexp"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
)

var (
	startDateVarPattern = regexp.MustCompile(`(?m)^(\s*VAR\s+_startdate\s*=\s*).*$`)
	endDateVarPattern   = regexp.MustCompile(`(?m)^(\s*VAR\s+_enddate\s*=\s*).*$`)
)

// EmitDateTable instantiates the calendar template text by substituting
// the _startdate and _enddate DAX VAR anchors; every other line of the
// template is left untouched (§4.6 — the template is opaque apart from
// these two anchored edits).
func EmitDateTable(templateText string, cfg model.DateTableConfig) string {
	startExpr := fmt.Sprintf("DATE(%d, 1, 1)", cfg.StartYear)
	endExpr := fmt.Sprintf("DATE(%d, 1, 1) - 1", cfg.EndYear+1)

	out := startDateVarPattern.ReplaceAllString(templateText, "${1}"+startExpr)
	out = endDateVarPattern.ReplaceAllString(out, "${1}"+endExpr)
	return out
}
