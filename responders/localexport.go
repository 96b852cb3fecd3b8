package responders

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvrengine/core/models"
)

// LocalExportDeliverer implements the "localExport" clip-transport
// protocol: move the remuxed temp file into the per-rule target
// directory, falling back to copy+remove if the move fails (e.g. the
// target lives on a different filesystem).
type LocalExportDeliverer struct {
	Settings func() models.LocalExportSettings
}

func (l *LocalExportDeliverer) Deliver(ctx context.Context, job models.PendingClip, tempFile string) error {
	settings := l.Settings()
	targetDir, ok := settings[strings.ToLower(job.RuleName)]
	if !ok || targetDir == "" {
		return fmt.Errorf("local export: no target directory configured for rule %s", job.RuleName)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating local export directory %s: %w", targetDir, err)
	}

	dst := filepath.Join(targetDir, filepath.Base(tempFile))

	if err := os.Rename(tempFile, dst); err == nil {
		return nil
	}
	return copyThenRemove(tempFile, dst)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s for copy: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return os.Remove(src)
}
