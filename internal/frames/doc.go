// Package frames attaches still images to time index rows.
//
// For every row of a video asset the correlator captures one frame at the
// start timestamp and one at the end timestamp, names them after the row's
// table position, and writes the names back to the time index. Assets that
// cannot be resolved or carry no video get empty image fields; a failed
// capture blanks only the affected field.
package frames
