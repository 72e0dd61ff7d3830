package timeindex

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"lectern/internal/fileutil"
	"lectern/internal/services"
	"lectern/internal/timecode"
	"lectern/internal/transcript"
)

// ProcessedAtLayout formats the processed_at column.
const ProcessedAtLayout = time.DateTime

var (
	baseColumns  = []string{"media_id", "start_time", "end_time", "speaker", "text", "language", "processed_at"}
	imageColumns = []string{"start_image_id", "end_image_id"}
)

// ErrNotFound reports a missing time index file.
var ErrNotFound = errors.New("time index not found")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Row is one persisted segment.
type Row struct {
	MediaID     string
	StartTime   string
	EndTime     string
	Speaker     string
	Text        string
	Language    string
	ProcessedAt string
	StartImage  string
	EndImage    string
}

// Images are the frame references attached to one row.
type Images struct {
	Start string
	End   string
}

func (r Row) hasImages() bool {
	return r.StartImage != "" || r.EndImage != ""
}

// Store is the CSV-backed time index at Path.
type Store struct {
	path string
}

// New returns a store for path. The file is not touched until first use.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether the backing file exists.
func (s *Store) Exists() bool {
	return fileutil.Exists(s.path)
}

// Overwrite replaces the whole table with rows.
func (s *Store) Overwrite(rows []Row) error {
	withImages := false
	for _, r := range rows {
		if r.hasImages() {
			withImages = true
			break
		}
	}
	return s.write(rows, withImages)
}

// ReplaceMedia replaces every row of mediaID with rows, keeping all other
// rows in place. The new rows take the position of the first replaced row,
// or are appended when the asset was not present.
func (s *Store) ReplaceMedia(mediaID string, rows []Row) error {
	existing, withImages, err := s.read()
	if errors.Is(err, ErrNotFound) {
		return s.Overwrite(rows)
	}
	if err != nil {
		return err
	}
	for _, r := range rows {
		if r.MediaID != mediaID {
			return services.Wrap(services.ErrInvalidInput, "timeindex", "replace media", fmt.Sprintf("row for %q passed to replace %q", r.MediaID, mediaID), nil)
		}
		if r.hasImages() {
			withImages = true
		}
	}

	merged := make([]Row, 0, len(existing)+len(rows))
	inserted := false
	for _, r := range existing {
		if r.MediaID != mediaID {
			merged = append(merged, r)
			continue
		}
		if !inserted {
			merged = append(merged, rows...)
			inserted = true
		}
	}
	if !inserted {
		merged = append(merged, rows...)
	}
	return s.write(merged, withImages)
}

// SetImages writes the image columns in place. images must have one entry per
// stored row, in row order.
func (s *Store) SetImages(images []Images) error {
	rows, _, err := s.read()
	if err != nil {
		return err
	}
	if len(images) != len(rows) {
		return services.Wrap(services.ErrInvalidInput, "timeindex", "set images",
			fmt.Sprintf("got %d image pairs for %d rows", len(images), len(rows)), nil)
	}
	for i := range rows {
		rows[i].StartImage = images[i].Start
		rows[i].EndImage = images[i].End
	}
	return s.write(rows, true)
}

// ReadAll returns every row in stored order.
func (s *Store) ReadAll() ([]Row, error) {
	rows, _, err := s.read()
	return rows, err
}

func (s *Store) read() ([]Row, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %s: %w", ErrNotFound, s.path, err)
		}
		return nil, false, fmt.Errorf("read time index: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, services.Wrap(services.ErrMalformedInput, "timeindex", "read header", s.path, err)
	}
	withImages, err := checkHeader(header)
	if err != nil {
		return nil, false, services.Wrap(services.ErrMalformedInput, "timeindex", "read header", s.path, err)
	}

	var rows []Row
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false, services.Wrap(services.ErrMalformedInput, "timeindex", "read row", s.path, err)
		}
		if len(record) != len(header) {
			return nil, false, services.Wrap(services.ErrMalformedInput, "timeindex", "read row",
				fmt.Sprintf("%s line %d: %d fields, want %d", s.path, line, len(record), len(header)), nil)
		}
		row := Row{
			MediaID:     record[0],
			StartTime:   record[1],
			EndTime:     record[2],
			Speaker:     record[3],
			Text:        record[4],
			Language:    record[5],
			ProcessedAt: record[6],
		}
		if withImages {
			row.StartImage = record[7]
			row.EndImage = record[8]
		}
		rows = append(rows, row)
	}
	return rows, withImages, nil
}

func checkHeader(header []string) (bool, error) {
	want := baseColumns
	switch len(header) {
	case len(baseColumns):
	case len(baseColumns) + len(imageColumns):
		want = append(append([]string{}, baseColumns...), imageColumns...)
	default:
		return false, fmt.Errorf("unexpected column count %d", len(header))
	}
	for i, name := range want {
		if strings.TrimSpace(header[i]) != name {
			return false, fmt.Errorf("column %d is %q, want %q", i+1, header[i], name)
		}
	}
	return len(header) > len(baseColumns), nil
}

func (s *Store) write(rows []Row, withImages bool) error {
	header := baseColumns
	if withImages {
		header = append(append([]string{}, baseColumns...), imageColumns...)
	}
	err := fileutil.WriteAtomic(s.path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		cw := csv.NewWriter(bw)
		if err := cw.Write(header); err != nil {
			return err
		}
		record := make([]string, len(header))
		for _, r := range rows {
			record = record[:0]
			record = append(record, r.MediaID, r.StartTime, r.EndTime, r.Speaker, r.Text, r.Language, r.ProcessedAt)
			if withImages {
				record = append(record, r.StartImage, r.EndImage)
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("write time index: %w", err)
	}
	return nil
}

// RowsFromSegments converts an assembled transcript into rows for mediaID.
func RowsFromSegments(mediaID, language string, processedAt time.Time, segments []transcript.Segment) []Row {
	stamp := processedAt.Format(ProcessedAtLayout)
	rows := make([]Row, 0, len(segments))
	for _, seg := range segments {
		rows = append(rows, Row{
			MediaID:     mediaID,
			StartTime:   timecode.FormatSeconds(seg.Start),
			EndTime:     timecode.FormatSeconds(seg.End),
			Speaker:     seg.Speaker,
			Text:        seg.Text,
			Language:    language,
			ProcessedAt: stamp,
		})
	}
	return rows
}

// RowsFromResult converts an assembled transcript into rows. A transcript
// with text but no segments becomes a single row spanning the whole duration.
func RowsFromResult(mediaID string, processedAt time.Time, res transcript.Result) []Row {
	if len(res.Segments) > 0 {
		return RowsFromSegments(mediaID, res.Language, processedAt, res.Segments)
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil
	}
	return []Row{{
		MediaID:     mediaID,
		StartTime:   timecode.FormatSeconds(0),
		EndTime:     timecode.FormatSeconds(res.Duration),
		Text:        res.Text,
		Language:    res.Language,
		ProcessedAt: processedAt.Format(ProcessedAtLayout),
	}}
}
