package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// WhisperTranscriber produces transcript artifacts through an
// OpenAI-compatible audio transcription endpoint.
type WhisperTranscriber struct {
	cli   *openai.Client
	model string
}

// WhisperOpts holds parameters for creating a WhisperTranscriber.
type WhisperOpts struct {
	APIKey  string
	BaseURL string // defaults to the OpenAI API
	Model   string // defaults to "whisper-1"
}

// NewWhisperTranscriber creates a WhisperTranscriber.
func NewWhisperTranscriber(opts WhisperOpts) (*WhisperTranscriber, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("media: transcriber: api key is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperTranscriber{
		cli:   openai.NewClientWithConfig(cfg),
		model: model,
	}, nil
}

// Transcribe converts the media file to text and writes two artifacts
// next to outDir: <name>.txt with the plain transcript and <name>.srt
// with timed subtitle cues. Returns the paths of both files.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, mediaPath, outDir, name string) (textPath, subtitlePath string, err error) {
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: mediaPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", "", fmt.Errorf("media: transcribe %s: %w", mediaPath, err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", "", fmt.Errorf("media: transcribe %s: empty transcription result", mediaPath)
	}

	cues := make([]Cue, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		cues = append(cues, Cue{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	if len(cues) == 0 {
		// Endpoint returned no timing info; emit the whole text as one cue.
		cues = append(cues, Cue{Start: 0, End: resp.Duration, Text: text})
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("media: create %s: %w", outDir, err)
	}
	textPath = filepath.Join(outDir, name+".txt")
	subtitlePath = filepath.Join(outDir, name+".srt")

	if err := os.WriteFile(textPath, []byte(text+"\n"), 0o644); err != nil {
		return "", "", fmt.Errorf("media: write %s: %w", textPath, err)
	}
	if err := os.WriteFile(subtitlePath, []byte(FormatSRT(cues)), 0o644); err != nil {
		return "", "", fmt.Errorf("media: write %s: %w", subtitlePath, err)
	}
	return textPath, subtitlePath, nil
}
