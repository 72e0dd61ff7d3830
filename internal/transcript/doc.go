// Package transcript assembles one continuous, time-ordered transcript for a
// media asset from a size-limited transcription capability.
//
// Sources within the upload limit are sent whole. Larger sources are split
// into clips, each clip is transcribed independently under its own timeout,
// and clip-relative timestamps are shifted by the clip offset before merging
// in offset order. A failed clip leaves a gap; only a run that yields no
// segments and no text at all is reported as an error.
package transcript
