// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Prober: duration and video-presence checks used by the segmenter and
//     the frame correlator
//
// Commands run through a RunFunc so tests can substitute canned output.
package ffprobe
