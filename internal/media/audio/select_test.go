package audio

import (
	"testing"

	"lectern/internal/media/ffprobe"
)

func TestSelectNoAudio(t *testing.T) {
	sel := Select([]ffprobe.Stream{{CodecType: "video"}})
	if sel.Ordinal != -1 {
		t.Fatalf("expected ordinal -1, got %d", sel.Ordinal)
	}
	if sel.MapSpec() != "0:a:0" {
		t.Fatalf("unexpected map spec %q", sel.MapSpec())
	}
	if sel.Label() != "" {
		t.Fatalf("expected empty label, got %q", sel.Label())
	}
}

func TestSelectPrefersDefaultOverCommentary(t *testing.T) {
	streams := []ffprobe.Stream{
		{Index: 0, CodecType: "video"},
		{Index: 1, CodecType: "audio", Channels: 2, Tags: map[string]string{"title": "Director Commentary"}, Disposition: map[string]int{"default": 1}},
		{Index: 2, CodecType: "audio", Channels: 2, Tags: map[string]string{"language": "eng"}},
		{Index: 3, CodecType: "audio", Channels: 2, Disposition: map[string]int{"default": 1}},
	}
	sel := Select(streams)
	if sel.Primary.Index != 3 || sel.Ordinal != 2 {
		t.Fatalf("expected stream 3 (ordinal 2), got index %d ordinal %d", sel.Primary.Index, sel.Ordinal)
	}
	if sel.MapSpec() != "0:a:2" {
		t.Fatalf("unexpected map spec %q", sel.MapSpec())
	}
}

func TestSelectKeepsFirstOnTie(t *testing.T) {
	streams := []ffprobe.Stream{
		{Index: 0, CodecType: "audio", CodecName: "aac", Channels: 1, Tags: map[string]string{"language": "ENG"}},
		{Index: 1, CodecType: "audio", CodecName: "aac", Channels: 1},
	}
	sel := Select(streams)
	if sel.Ordinal != 0 {
		t.Fatalf("expected first stream, got ordinal %d", sel.Ordinal)
	}
	if sel.Label() != "eng | aac | 1ch" {
		t.Fatalf("unexpected label %q", sel.Label())
	}
}
