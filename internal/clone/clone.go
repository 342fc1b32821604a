// Package clone implements the Template-Cloner: it copies the PBIP
// template folder tree into a fresh output project, substituting the
// project name into file/directory names and selected text files, and
// regenerating platform logical IDs so each clone is distinct. The
// directory-walk-plus-ordered-apply shape follows
// internal/db/migrations.go's migration runner in the teacher repo,
// generalised from "walk migration files, apply each" to "walk
// template files, transform each".
package clone

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/guidgen"
)

// textFileExtensions is the set of extensions whose contents get the
// "Template" -> project-name substitution, per §4.9.
var textFileExtensions = map[string]bool{
	".json": true, ".pbip": true, ".pbism": true, ".pbir": true,
	".tmdl": true, ".txt": true, ".platform": true,
}

const templateMarker = "Template"

// Clone copies the template folder tree rooted at templateFolder into
// outputFolder, substituting templateMarker for projectName in path
// segments and, for recognised text extensions, in file contents.
// .platform files additionally get a fresh logicalId and
// metadata.displayName. Binary files are copied verbatim.
func Clone(templateFolder, outputFolder, projectName string) error {
	return filepath.Walk(templateFolder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("clone: walking template: %w", err)
		}

		rel, err := filepath.Rel(templateFolder, path)
		if err != nil {
			return fmt.Errorf("clone: computing relative path for %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}

		destRel := substitutePathSegments(rel, projectName)
		dest := filepath.Join(outputFolder, destRel)

		if info.IsDir() {
			log.Printf("clone: creating directory %s", destRel)
			return os.MkdirAll(dest, 0o755)
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("clone: creating parent of %s: %w", dest, err)
		}

		return cloneFile(path, dest, projectName)
	})
}

// RestoreFile re-clones a single relative template file (and its
// destination directory) into outputFolder, applying the same
// name-substitution and logicalId-minting rules as Clone. The
// orchestrator's Verifying step uses this to repair an individually
// missing required file without re-cloning the whole tree (§4.13),
// since a full reclone after the first build would overwrite any
// Report-side customisation the builder otherwise never touches.
func RestoreFile(templateFolder, outputFolder, projectName, relPath string) error {
	srcPath := filepath.Join(templateFolder, relPath)
	destRel := substitutePathSegments(relPath, projectName)
	destPath := filepath.Join(outputFolder, destRel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("clone: creating parent of %s: %w", destPath, err)
	}
	return cloneFile(srcPath, destPath, projectName)
}

func substitutePathSegments(relPath, projectName string) string {
	segments := strings.Split(relPath, string(filepath.Separator))
	for i, seg := range segments {
		segments[i] = strings.ReplaceAll(seg, templateMarker, projectName)
	}
	return filepath.Join(segments...)
}

func cloneFile(srcPath, destPath, projectName string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("clone: reading %s: %w", srcPath, err)
	}

	ext := strings.ToLower(filepath.Ext(srcPath))
	if !textFileExtensions[ext] {
		log.Printf("clone: copying binary file %s verbatim", filepath.Base(srcPath))
		return os.WriteFile(destPath, data, 0o644)
	}

	content := strings.ReplaceAll(string(data), templateMarker, projectName)

	if ext == ".platform" {
		content, err = rewritePlatformFile(content, projectName)
		if err != nil {
			return fmt.Errorf("clone: rewriting .platform file %s: %w", srcPath, err)
		}
	}

	log.Printf("clone: writing %s", filepath.Base(destPath))
	return os.WriteFile(destPath, []byte(content), 0o644)
}

// rewritePlatformFile sets metadata.displayName to projectName and
// mints a fresh config.logicalId, preserving every other field of the
// original JSON document (round-tripped through json.RawMessage so
// unknown fields survive).
func rewritePlatformFile(content, projectName string) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return "", fmt.Errorf("parsing .platform JSON: %w", err)
	}

	var metadata map[string]json.RawMessage
	if raw, ok := doc["metadata"]; ok {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return "", fmt.Errorf("parsing .platform metadata: %w", err)
		}
	} else {
		metadata = map[string]json.RawMessage{}
	}
	displayNameJSON, err := json.Marshal(projectName)
	if err != nil {
		return "", err
	}
	metadata["displayName"] = displayNameJSON
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	doc["metadata"] = metadataJSON

	var config map[string]json.RawMessage
	if raw, ok := doc["config"]; ok {
		if err := json.Unmarshal(raw, &config); err != nil {
			return "", fmt.Errorf("parsing .platform config: %w", err)
		}
	} else {
		config = map[string]json.RawMessage{}
	}
	logicalIDJSON, err := json.Marshal(guidgen.New())
	if err != nil {
		return "", err
	}
	config["logicalId"] = logicalIDJSON
	configJSON, err := json.Marshal(config)
	if err != nil {
		return "", err
	}
	doc["config"] = configJSON

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("re-marshalling .platform JSON: %w", err)
	}
	return string(out), nil
}
