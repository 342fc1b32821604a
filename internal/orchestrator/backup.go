package orchestrator

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backupFolder copies srcRoot's entire tree to a sibling
// "PBIP_Backup_<yyyyMMdd_HHmmss>" directory, per §4.13's Backing Up
// state. A failure here is logged and downgraded to a warning by the
// caller — the backup is advisory, never a precondition for Apply.
func backupFolder(srcRoot string, now time.Time) (string, error) {
	backupRoot := filepath.Join(filepath.Dir(srcRoot), fmt.Sprintf("PBIP_Backup_%s", now.Format("20060102_150405")))

	err := filepath.Walk(srcRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcRoot, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(backupRoot, rel)
		if info.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}
		return copyFile(path, dest, info.Mode())
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: backing up %s: %w", srcRoot, err)
	}
	return backupRoot, nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
