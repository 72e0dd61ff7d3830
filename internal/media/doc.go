// Package media discovers input assets and classifies them as audio or video.
//
// Asset identity is the file name, which must be unique within one batch. The
// ffprobe and audio subpackages inspect containers and pick the stream used
// for transcription.
package media
