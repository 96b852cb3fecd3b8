package videotoolkit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FakeToolkit is a stand-in used by tests: it "remuxes" by writing
// placeholder bytes to dst on disk rather than shelling out to ffmpeg.
type FakeToolkit struct {
	RecoveredOffsetMs int64
}

func NewFakeToolkit() *FakeToolkit { return &FakeToolkit{} }

func (f *FakeToolkit) RemuxSubClip(ctx context.Context, src, dst string, startOffsetMs, endOffsetMs int64, configDir string) (RemuxResult, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return RemuxResult{}, err
	}
	if err := os.WriteFile(dst, []byte(fmt.Sprintf("subclip:%s:%d:%d", src, startOffsetMs, endOffsetMs)), 0o644); err != nil {
		return RemuxResult{}, err
	}
	recovered := startOffsetMs + f.RecoveredOffsetMs
	return RemuxResult{ActualFirstMs: recovered}, nil
}

func (f *FakeToolkit) RemuxClip(ctx context.Context, fileList []string, dst string, firstMs, lastMs int64, configDir string, extras map[string]string) error {
	if len(fileList) == 0 {
		return fmt.Errorf("remux clip: empty file list")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("clip:%v:%d:%d", fileList, firstMs, lastMs)), 0o644)
}

func (f *FakeToolkit) OpenClipReader(ctx context.Context, path string) (ClipReader, error) {
	return &fakeClipReader{path: path}, nil
}

type fakeClipReader struct {
	path string
	ms   int64
}

func (r *fakeClipReader) Seek(ms int64) error         { r.ms = ms; return nil }
func (r *fakeClipReader) GetNextFrame() ([]byte, error) { return []byte(fmt.Sprintf("frame@%d", r.ms)), nil }
func (r *fakeClipReader) GetPrevFrame() ([]byte, error) { return []byte(fmt.Sprintf("frame@%d", r.ms)), nil }
func (r *fakeClipReader) GetInputSize() (int, int)    { return 1920, 1080 }
func (r *fakeClipReader) Close() error                { return nil }
