// Package ffmpeg wraps the ffmpeg invocations lectern needs: mono speech
// audio extraction, fixed-duration clip extraction, and single-frame JPEG
// capture.
//
// Service satisfies the clip extractor used by the segmenter and the frame
// capturer used by the frame correlator. Tests swap the command runner to
// record arguments without executing ffmpeg.
package ffmpeg
