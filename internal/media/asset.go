package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind classifies an input asset.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var videoExtensions = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {}, ".webm": {}, ".m4v": {},
}

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".ogg": {}, ".flac": {}, ".aac": {}, ".wma": {},
}

// directUploadExtensions lists audio containers the transcription API accepts
// without re-encoding.
var directUploadExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {},
}

// Asset is one input media file.
type Asset struct {
	ID       string
	Kind     Kind
	Path     string
	Duration float64
}

// KindForPath classifies path by extension. ok is false for unsupported files.
func KindForPath(path string) (Kind, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := videoExtensions[ext]; ok {
		return KindVideo, true
	}
	if _, ok := audioExtensions[ext]; ok {
		return KindAudio, true
	}
	return "", false
}

// NeedsAudioExtraction reports whether the asset must be converted to a mono
// audio clip before it can be sent for transcription.
func (a Asset) NeedsAudioExtraction() bool {
	if a.Kind == KindVideo {
		return true
	}
	_, direct := directUploadExtensions[strings.ToLower(filepath.Ext(a.Path))]
	return !direct
}

// NewAsset builds an asset for a single file path.
func NewAsset(path string) (Asset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Asset{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Asset{}, err
	}
	if info.IsDir() {
		return Asset{}, fmt.Errorf("%s is a directory", abs)
	}
	kind, ok := KindForPath(abs)
	if !ok {
		return Asset{}, fmt.Errorf("%s: unsupported media type %q", abs, filepath.Ext(abs))
	}
	return Asset{ID: filepath.Base(abs), Kind: kind, Path: abs}, nil
}

// Discover lists supported media files directly inside dir, sorted by name.
func Discover(dir string) ([]Asset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	assets := make([]Asset, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		kind, ok := KindForPath(entry.Name())
		if !ok {
			continue
		}
		assets = append(assets, Asset{
			ID:   entry.Name(),
			Kind: kind,
			Path: filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

// ErrDuplicateID reports two assets sharing a file name in one batch.
var ErrDuplicateID = errors.New("duplicate media id")

// CheckUnique returns ErrDuplicateID when two assets share an ID.
func CheckUnique(assets []Asset) error {
	seen := make(map[string]string, len(assets))
	for _, asset := range assets {
		if prev, ok := seen[asset.ID]; ok {
			return fmt.Errorf("%w: %s (%s, %s)", ErrDuplicateID, asset.ID, prev, asset.Path)
		}
		seen[asset.ID] = asset.Path
	}
	return nil
}

// DirResolver maps a media id back to a file inside Dir.
type DirResolver struct {
	Dir string
}

// Resolve returns the path of mediaID inside the resolver directory.
func (r DirResolver) Resolve(mediaID string) (string, error) {
	name := strings.TrimSpace(mediaID)
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid media id %q", mediaID)
	}
	path := filepath.Join(r.Dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}
