package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/franz/music-cleanup/internal/util"
)

// FFmpegTagWriter writes tags by remuxing through ffmpeg with codec
// copy, via a temp file and an atomic rename. This is the default
// MetadataWriter.
type FFmpegTagWriter struct {
	binary string
}

// NewFFmpegTagWriter creates an ffmpeg-backed tag writer
func NewFFmpegTagWriter(binary string) *FFmpegTagWriter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegTagWriter{binary: binary}
}

// Available reports whether ffmpeg can be found
func (w *FFmpegTagWriter) Available() bool {
	_, err := exec.LookPath(w.binary)
	return err == nil
}

// WriteTags writes the given tag key/values to the file in place using
// temp-plus-rename. The original bytes are replaced only after ffmpeg
// has fully written the tagged copy.
func (w *FFmpegTagWriter) WriteTags(ctx context.Context, path string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file does not exist: %w", err)
	}

	tempPath := path + ".tagged"

	args := []string{"-i", path}
	for key, value := range tags {
		if value == "" {
			continue
		}
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", key, value))
	}
	args = append(args,
		"-c", "copy", // don't re-encode
		"-y",
		tempPath,
	)

	cmd := exec.CommandContext(ctx, w.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("ffmpeg failed: %w (output: %s)", err, string(output))
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename tagged file: %w", err)
	}

	util.DebugLog("Wrote tags to: %s", path)
	return nil
}

// NoopTagWriter discards all writes. The CLI does not use it: with tag
// writing disabled the organizer gets a nil writer instead.
type NoopTagWriter struct{}

// WriteTags does nothing
func (NoopTagWriter) WriteTags(ctx context.Context, path string, tags map[string]string) error {
	return nil
}
