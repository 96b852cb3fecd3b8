package responders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/models"
)

func TestLocalExportDeliverMovesFileIntoRuleDirectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "clip123.mp4")
	require.NoError(t, os.WriteFile(src, []byte("clip-bytes"), 0o644))

	targetDir := filepath.Join(t.TempDir(), "doorbell")
	d := &LocalExportDeliverer{Settings: func() models.LocalExportSettings {
		return models.LocalExportSettings{"doorbell": targetDir}
	}}

	err := d.Deliver(context.Background(), models.PendingClip{RuleName: "Doorbell"}, src)
	require.NoError(t, err)

	dst := filepath.Join(targetDir, "clip123.mp4")
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, "clip-bytes", string(data))

	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))
}

func TestLocalExportDeliverMissingTargetDirIsError(t *testing.T) {
	d := &LocalExportDeliverer{Settings: func() models.LocalExportSettings { return models.LocalExportSettings{} }}
	err := d.Deliver(context.Background(), models.PendingClip{RuleName: "Unknown"}, "/tmp/does-not-matter.mp4")
	require.Error(t, err)
}
