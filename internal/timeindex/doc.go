// Package timeindex persists transcript segments as the CSV hand-off file
// between pipeline stages.
//
// Row position is identity: the frame correlator names images after it and
// the embedding indexer assigns vector ids in read order, so every write
// preserves the order of rows it does not replace. Writes go through a temp
// file and rename so a crash never leaves a truncated table behind.
package timeindex
