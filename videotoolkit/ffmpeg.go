package videotoolkit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
)

// FfmpegToolkit shells out to an ffmpeg binary.
type FfmpegToolkit struct {
	BinPath    string
	ScratchDir string
	Log        zerolog.Logger
}

func NewFfmpegToolkit(binPath, scratchDir string, log zerolog.Logger) *FfmpegToolkit {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	return &FfmpegToolkit{BinPath: binPath, ScratchDir: scratchDir, Log: log}
}

func (f *FfmpegToolkit) RemuxSubClip(ctx context.Context, src, dst string, startOffsetMs, endOffsetMs int64, configDir string) (RemuxResult, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return RemuxResult{}, fmt.Errorf("preparing output dir: %w", err)
	}

	startSec := float64(startOffsetMs) / 1000.0
	durSec := float64(endOffsetMs-startOffsetMs) / 1000.0

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", durSec),
		"-c", "copy",
		dst,
	}
	out, err := f.run(ctx, args)
	if err != nil {
		return RemuxResult{}, fmt.Errorf("ffmpeg remux sub-clip: %w: %s", err, out)
	}

	return RemuxResult{ActualFirstMs: parseRecoveredStartMs(out, startOffsetMs)}, nil
}

func (f *FfmpegToolkit) RemuxClip(ctx context.Context, fileList []string, dst string, firstMs, lastMs int64, configDir string, extras map[string]string) error {
	if len(fileList) == 0 {
		return fmt.Errorf("remux clip: empty file list")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("preparing output dir: %w", err)
	}

	concatPath := filepath.Join(f.ScratchDir, fmt.Sprintf("concat-%d.txt", firstMs))
	if err := os.MkdirAll(f.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("preparing scratch dir: %w", err)
	}
	var buf bytes.Buffer
	for _, path := range fileList {
		fmt.Fprintf(&buf, "file '%s'\n", path)
	}
	if err := os.WriteFile(concatPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	defer os.Remove(concatPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", concatPath,
		"-c", "copy",
		dst,
	}
	if out, err := f.run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg remux clip: %w: %s", err, out)
	}
	return nil
}

func (f *FfmpegToolkit) OpenClipReader(ctx context.Context, path string) (ClipReader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("opening clip reader: %w", err)
	}
	return &ffmpegClipReader{toolkit: f, path: path}, nil
}

func (f *FfmpegToolkit) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, f.BinPath, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var recoveredStartRe = regexp.MustCompile(`start:\s*([0-9.]+)`)

// parseRecoveredStartMs best-effort extracts ffmpeg's reported stream
// start offset from its stderr banner; falls back to the requested
// offset if ffmpeg did not report one.
func parseRecoveredStartMs(ffmpegOutput string, requestedMs int64) int64 {
	m := recoveredStartRe.FindStringSubmatch(ffmpegOutput)
	if m == nil {
		return requestedMs
	}
	sec, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return requestedMs
	}
	return int64(sec * 1000)
}

// ffmpegClipReader grabs single frames on demand via `-frames:v 1`
// rather than keeping a long-lived decode pipe open, which is enough
// for the response pipeline's single-preview-frame need.
type ffmpegClipReader struct {
	toolkit  *FfmpegToolkit
	path     string
	curMs    int64
	width    int
	height   int
}

func (r *ffmpegClipReader) Seek(ms int64) error {
	r.curMs = ms
	return nil
}

func (r *ffmpegClipReader) GetNextFrame() ([]byte, error) {
	return r.grabFrame(r.curMs)
}

func (r *ffmpegClipReader) GetPrevFrame() ([]byte, error) {
	ms := r.curMs - 1000
	if ms < 0 {
		ms = 0
	}
	return r.grabFrame(ms)
}

func (r *ffmpegClipReader) grabFrame(ms int64) ([]byte, error) {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", float64(ms)/1000.0),
		"-i", r.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	}
	cmd := exec.Command(r.toolkit.BinPath, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("grabbing frame at %dms: %w", ms, err)
	}
	return out.Bytes(), nil
}

func (r *ffmpegClipReader) GetInputSize() (int, int) { return r.width, r.height }
func (r *ffmpegClipReader) Close() error              { return nil }
