package orchestrator

import (
	"path/filepath"
	"strings"
)

// invalidFileNameChars are the characters §6 requires replaced with
// "_" when deriving a table's TMDL file name from its display name.
const invalidFileNameChars = `<>:"/\|?*`

// SanitizeFileName replaces each filename-invalid character in name
// with "_", per §6 ("sanitised display_name replaces each
// filename-invalid character with _").
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(invalidFileNameChars, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// layout resolves every path the orchestrator reads from or writes to,
// rooted at <output_folder>/PBIP/ per §6.
type layout struct {
	pbipRoot         string
	pbipFile         string
	reportDir        string
	semanticModelDir string
	definitionDir    string
	tablesDir        string
	platformFile     string
	pbismFile        string
	modelFile        string
	expressionsFile  string
	relationshipsFile string
	dateTableFile    string
}

func newLayout(outputFolder, projectName string) layout {
	pbipRoot := filepath.Join(outputFolder, "PBIP")
	semanticModelDir := filepath.Join(pbipRoot, projectName+".SemanticModel")
	definitionDir := filepath.Join(semanticModelDir, "definition")
	return layout{
		pbipRoot:          pbipRoot,
		pbipFile:          filepath.Join(pbipRoot, projectName+".pbip"),
		reportDir:         filepath.Join(pbipRoot, projectName+".Report"),
		semanticModelDir:  semanticModelDir,
		definitionDir:     definitionDir,
		tablesDir:         filepath.Join(definitionDir, "tables"),
		platformFile:      filepath.Join(semanticModelDir, ".platform"),
		pbismFile:         filepath.Join(semanticModelDir, "definition.pbism"),
		modelFile:         filepath.Join(definitionDir, "model.tmdl"),
		expressionsFile:   filepath.Join(definitionDir, "expressions.tmdl"),
		relationshipsFile: filepath.Join(definitionDir, "relationships.tmdl"),
		dateTableFile:     filepath.Join(definitionDir, "tables", "Date.tmdl"),
	}
}

func (l layout) tableFile(displayName string) string {
	return filepath.Join(l.tablesDir, SanitizeFileName(displayName)+".tmdl")
}
