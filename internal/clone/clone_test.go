package clone

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Template.SemanticModel", "definition"), 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "Template.pbip"), []byte(`{"name": "Template"}`), 0o644))

	platform := map[string]any{
		"metadata": map[string]any{"type": "SemanticModel", "displayName": "Template"},
		"config":   map[string]any{"version": "2.0", "logicalId": "00000000-0000-0000-0000-000000000000"},
	}
	raw, err := json.Marshal(platform)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "Template.SemanticModel", ".platform"), raw, 0o644))

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "Template.SemanticModel", "definition", "model.tmdl"),
		[]byte("model Template\n"), 0o644,
	))

	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))
}

func TestClone_SubstitutesProjectNameInPathsAndContents(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTemplate(t, src)

	require.NoError(t, Clone(src, dst, "Contoso"))

	require.FileExists(t, filepath.Join(dst, "Contoso.pbip"))
	require.FileExists(t, filepath.Join(dst, "Contoso.SemanticModel", "definition", "model.tmdl"))

	modelContent, err := os.ReadFile(filepath.Join(dst, "Contoso.SemanticModel", "definition", "model.tmdl"))
	require.NoError(t, err)
	require.Equal(t, "model Contoso\n", string(modelContent))
}

func TestClone_PlatformFileGetsFreshLogicalIDAndDisplayName(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTemplate(t, src)

	require.NoError(t, Clone(src, dst, "Contoso"))

	raw, err := os.ReadFile(filepath.Join(dst, "Contoso.SemanticModel", ".platform"))
	require.NoError(t, err)

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Equal(t, "Contoso", doc["metadata"]["displayName"])
	require.NotEqual(t, "00000000-0000-0000-0000-000000000000", doc["config"]["logicalId"])
}

func TestClone_BinaryFileCopiedVerbatim(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTemplate(t, src)

	require.NoError(t, Clone(src, dst, "Contoso"))

	orig, err := os.ReadFile(filepath.Join(src, "logo.png"))
	require.NoError(t, err)
	copied, err := os.ReadFile(filepath.Join(dst, "logo.png"))
	require.NoError(t, err)
	require.Equal(t, orig, copied)
}
