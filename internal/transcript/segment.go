package transcript

import (
	"context"
	"sort"
	"strings"
)

// LanguageAuto is reported when a transcript was merged from several clips.
const LanguageAuto = "auto"

// LanguageUnknown is reported when the capability detected no language.
const LanguageUnknown = "unknown"

// Segment is one utterance span. Times are seconds on the asset timeline.
type Segment struct {
	Start   float64
	End     float64
	Speaker string
	Text    string
}

// Transcription is the capability output for one file or clip. Segment times
// are relative to the start of that file.
type Transcription struct {
	Segments []Segment
	Language string
	Text     string
}

// Transcriber converts an audio file into timed segments.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (Transcription, error)
}

// wholeText returns the capability text, or the segment texts in start order
// joined by a space when the capability returned none.
func (t Transcription) wholeText() string {
	if text := strings.TrimSpace(t.Text); text != "" {
		return text
	}
	ordered := append([]Segment(nil), t.Segments...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	parts := make([]string, 0, len(ordered))
	for _, seg := range ordered {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// shifted returns seg moved by offset seconds, clamped so that
// 0 <= Start <= End.
func (seg Segment) shifted(offset float64) Segment {
	seg.Start += offset
	seg.End += offset
	if seg.Start < 0 {
		seg.Start = 0
	}
	if seg.End < seg.Start {
		seg.End = seg.Start
	}
	return seg
}
