package tmdl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
)

var dataverseURLExprPattern = regexp.MustCompile(`(?m)^(\s*expression DataverseURL\s*=\s*)"[^"]*"(.*)$`)

// ExtractDataverseURL recovers the single-line string literal value of
// the DataverseURL expression from expressions.tmdl content, per
// §4.11's URL comparison ("Extract the value of DataverseURL from
// definition/expressions.tmdl").
func ExtractDataverseURL(content string) string {
	for _, l := range strings.Split(ToLF(content), "\n") {
		trimmed := strings.TrimSpace(l)
		if !strings.HasPrefix(trimmed, "expression DataverseURL") {
			continue
		}
		start := strings.Index(trimmed, `"`)
		if start < 0 {
			continue
		}
		rest := trimmed[start+1:]
		end := strings.Index(rest, `"`)
		if end < 0 {
			continue
		}
		return rest[:end]
	}
	return ""
}

// HasFabricExpressions reports whether content already carries the
// FabricSQLEndpoint expression FabricLink mode adds — used to infer
// which connection mode a prior build was generated under, since the
// builder itself stores no separate metadata file recording it.
func HasFabricExpressions(content string) bool {
	return strings.Contains(content, "expression FabricSQLEndpoint")
}

// RewriteExpressions substitutes the DataverseURL literal in
// templateText (the cloned template's expressions.tmdl) and, under
// FabricLink mode, appends the FabricSQLEndpoint/FabricLakehouse
// expressions the partition source in §4.3 refers to, when not already
// present.
func RewriteExpressions(templateText, dataverseURL string, mode model.ConnectionMode, fabricEndpoint, fabricLakehouse string) string {
	lf := ToLF(templateText)
	out := lf
	if dataverseURLExprPattern.MatchString(lf) {
		out = dataverseURLExprPattern.ReplaceAllString(lf, fmt.Sprintf(`${1}"%s"$2`, dataverseURL))
	} else {
		out = strings.TrimRight(out, "\n") + "\n" + fmt.Sprintf("expression DataverseURL = %q meta [IsParameterQuery=true, Type=\"Text\", IsParameterQueryRequired=true]\n", dataverseURL)
	}

	if mode != model.ConnectionFabricLink || HasFabricExpressions(out) {
		return out
	}

	out = strings.TrimRight(out, "\n") + "\n"
	out += fmt.Sprintf("expression FabricSQLEndpoint = %q meta [IsParameterQuery=true, Type=\"Text\", IsParameterQueryRequired=true]\n", fabricEndpoint)
	out += fmt.Sprintf("expression FabricLakehouse = %q meta [IsParameterQuery=true, Type=\"Text\", IsParameterQueryRequired=true]\n", fabricLakehouse)
	return out
}
