// Package media wraps the external tools that turn a video link into
// transcript artifacts: the you-get downloader and the whisper
// speech-to-text API.
package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// mediaExts are the container formats you-get is known to produce for
// Bilibili videos.
var mediaExts = map[string]bool{
	".mp4":  true,
	".flv":  true,
	".mkv":  true,
	".webm": true,
}

// YouGetDownloader fetches videos with the you-get command-line tool.
type YouGetDownloader struct {
	Binary string // defaults to "you-get"
}

// NewYouGetDownloader creates a downloader using the you-get binary on PATH.
func NewYouGetDownloader() *YouGetDownloader {
	return &YouGetDownloader{Binary: "you-get"}
}

// Download fetches the video at url into destDir and returns the path of
// the downloaded media file. The subprocess is killed when ctx expires.
func (d *YouGetDownloader) Download(ctx context.Context, url, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("media: create %s: %w", destDir, err)
	}

	bin := d.Binary
	if bin == "" {
		bin = "you-get"
	}
	cmd := exec.CommandContext(ctx, bin, "--output-dir", destDir, url)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("media: download %s: %w", url, ctx.Err())
		}
		return "", fmt.Errorf("media: you-get %s: %w: %s", url, err, lastLine(out))
	}

	path, err := findMediaFile(destDir)
	if err != nil {
		return "", fmt.Errorf("media: download %s: %w", url, err)
	}
	return path, nil
}

// findMediaFile locates the first media file in dir by extension.
func findMediaFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if mediaExts[strings.ToLower(filepath.Ext(e.Name()))] {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("no media file found in %s", dir)
}

// lastLine returns the last non-empty line of subprocess output, which is
// where you-get reports its error.
func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
