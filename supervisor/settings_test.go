package supervisor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nvrengine/core/models"
)

func TestSettingsBoxUpdateIsCopyOnWrite(t *testing.T) {
	b := newSettingsBox()
	original := b.Get()

	b.Update(func(s *Settings) {
		s.ServicesToken = "tok-1"
		s.CamResolutions["front"] = Resolution{Width: 1920, Height: 1080}
	})

	updated := b.Get()
	require.Equal(t, "", original.ServicesToken, "prior snapshot must remain untouched")
	require.Empty(t, original.CamResolutions)
	require.Equal(t, "tok-1", updated.ServicesToken)
	require.Equal(t, Resolution{Width: 1920, Height: 1080}, updated.CamResolutions["front"])
}

func TestSettingsBoxUpdatePreservesUntouchedFields(t *testing.T) {
	b := newSettingsBox()
	b.Update(func(s *Settings) { s.Ftp = models.FtpSettings{Host: "ftp.example", Port: 21} })
	b.Update(func(s *Settings) { s.ServicesToken = "tok-2" })

	got := b.Get()
	require.Equal(t, "ftp.example", got.Ftp.Host)
	require.Equal(t, "tok-2", got.ServicesToken)
}

func TestSettingsBoxLocalExportCopiedNotAliased(t *testing.T) {
	b := newSettingsBox()
	b.Update(func(s *Settings) { s.LocalExport = models.LocalExportSettings{"doorbell": "/exports/doorbell"} })

	snap1 := b.Get()
	b.Update(func(s *Settings) { s.LocalExport["garage"] = "/exports/garage" })
	snap2 := b.Get()

	require.Len(t, snap1.LocalExport, 1, "earlier snapshot must not see the later mutation")
	require.Len(t, snap2.LocalExport, 2)
}
