// Package audio chooses which audio stream of a container is extracted for
// transcription.
//
// Primary entry point:
//   - Select: ranks audio streams and returns the speech track with its
//     ffmpeg map specifier
package audio
