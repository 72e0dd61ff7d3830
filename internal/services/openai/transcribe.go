package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"lectern/internal/transcript"
)

const (
	// DefaultTranscriptionModel returns speaker-labelled segments.
	DefaultTranscriptionModel = "gpt-4o-transcribe-diarize"
	diarizedResponseFormat    = "diarized_json"
	defaultSpeaker            = "Speaker"
)

type transcriptionResponse struct {
	Text     string                 `json:"text"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"`
	Segments []transcriptionSegment `json:"segments"`
}

type transcriptionSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Speaker    string  `json:"speaker"`
	Transcript string  `json:"transcript"`
	Text       string  `json:"text"`
}

// Transcribe uploads the audio file at path and returns its diarized segments.
// Segment text prefers the "transcript" field over "text"; a missing speaker
// becomes "Speaker" and a missing language becomes "unknown".
func (c *Client) Transcribe(ctx context.Context, path string) (transcript.Transcription, error) {
	const op = "openai transcribe"
	if _, err := os.Stat(path); err != nil {
		return transcript.Transcription{}, fmt.Errorf("%s: %w", op, err)
	}

	payload, err := c.post(ctx, op, "audio/transcriptions", func() (io.Reader, string, error) {
		return transcriptionForm(path, c.cfg.Model)
	})
	if err != nil {
		return transcript.Transcription{}, err
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return transcript.Transcription{}, fmt.Errorf("%s: decode response: %w (payload snippet: %s)", op, err, snippet(string(payload)))
	}
	return parsed.toTranscription(), nil
}

func transcriptionForm(path, model string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"model", model},
		{"response_format", diarizedResponseFormat},
		{"chunking_strategy", "auto"},
	}
	for _, field := range fields {
		if err := form.WriteField(field[0], field[1]); err != nil {
			return nil, "", err
		}
	}
	if err := form.Close(); err != nil {
		return nil, "", err
	}
	return &buf, form.FormDataContentType(), nil
}

func (r transcriptionResponse) toTranscription() transcript.Transcription {
	out := transcript.Transcription{
		Text:     strings.TrimSpace(r.Text),
		Language: strings.TrimSpace(r.Language),
		Segments: make([]transcript.Segment, 0, len(r.Segments)),
	}
	if out.Language == "" {
		out.Language = transcript.LanguageUnknown
	}
	for _, seg := range r.Segments {
		text := strings.TrimSpace(seg.Transcript)
		if text == "" {
			text = strings.TrimSpace(seg.Text)
		}
		speaker := strings.TrimSpace(seg.Speaker)
		if speaker == "" {
			speaker = defaultSpeaker
		}
		out.Segments = append(out.Segments, transcript.Segment{
			Start:   seg.Start,
			End:     seg.End,
			Speaker: speaker,
			Text:    text,
		})
	}
	return out
}
