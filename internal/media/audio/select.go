package audio

import (
	"strconv"
	"strings"

	"lectern/internal/media/ffprobe"
)

// Selection names the audio stream sent for transcription.
type Selection struct {
	Primary ffprobe.Stream
	// Ordinal is the position among audio streams, as used by ffmpeg's
	// "-map 0:a:N". -1 when the container has no audio.
	Ordinal int
}

// Label returns a human-readable summary of the selected stream.
func (s Selection) Label() string {
	if s.Ordinal < 0 {
		return ""
	}
	return formatStreamSummary(s.Primary)
}

// MapSpec returns the ffmpeg -map argument for the selection.
func (s Selection) MapSpec() string {
	if s.Ordinal < 0 {
		return "0:a:0"
	}
	return "0:a:" + strconv.Itoa(s.Ordinal)
}

// Select picks the stream that most likely carries the main speech track.
// Commentary and audio-description tracks are ranked last; the container
// default wins ties; earlier streams win remaining ties.
func Select(streams []ffprobe.Stream) Selection {
	candidates := buildCandidates(streams)
	if len(candidates) == 0 {
		return Selection{Ordinal: -1}
	}
	best := candidates[0]
	bestScore := score(best)
	for _, cand := range candidates[1:] {
		if s := score(cand); s > bestScore {
			best = cand
			bestScore = s
		}
	}
	return Selection{Primary: best.stream, Ordinal: best.order}
}

type candidate struct {
	stream         ffprobe.Stream
	order          int
	title          string
	channels       int
	defaultFlagged bool
	secondary      bool
}

func score(cand candidate) float64 {
	s := 0.0
	if cand.secondary {
		s -= 1000
	}
	if cand.defaultFlagged {
		s += 100
	}
	if cand.channels > 0 {
		s += 10
	}
	return s - float64(cand.order)*0.1
}

func buildCandidates(streams []ffprobe.Stream) []candidate {
	result := make([]candidate, 0, len(streams))
	order := 0
	for _, stream := range streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		cand := candidate{
			stream:         stream,
			order:          order,
			title:          normalizeTitle(stream.Tags),
			channels:       stream.Channels,
			defaultFlagged: stream.Disposition != nil && stream.Disposition["default"] == 1,
		}
		cand.secondary = isSecondary(stream, cand.title)
		result = append(result, cand)
		order++
	}
	return result
}

func isSecondary(stream ffprobe.Stream, title string) bool {
	if stream.Disposition != nil {
		if stream.Disposition["comment"] == 1 || stream.Disposition["visual_impaired"] == 1 {
			return true
		}
	}
	for _, keyword := range []string{"commentary", "description", "descriptive"} {
		if strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}

func normalizeTitle(tags map[string]string) string {
	for _, key := range []string{"title", "TITLE", "handler_name", "HANDLER_NAME"} {
		if value, ok := tags[key]; ok {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}

func formatStreamSummary(stream ffprobe.Stream) string {
	parts := make([]string, 0, 4)
	if lang := strings.TrimSpace(stream.Tags["language"]); lang != "" {
		parts = append(parts, strings.ToLower(lang))
	}
	codec := stream.CodecLong
	if codec == "" {
		codec = stream.CodecName
	}
	if codec != "" {
		parts = append(parts, codec)
	}
	if stream.Channels > 0 {
		parts = append(parts, strconv.Itoa(stream.Channels)+"ch")
	}
	if title := strings.TrimSpace(stream.Tags["title"]); title != "" {
		parts = append(parts, title)
	}
	if len(parts) == 0 {
		return "audio"
	}
	return strings.Join(parts, " | ")
}
