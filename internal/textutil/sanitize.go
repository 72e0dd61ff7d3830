package textutil

import (
	"path/filepath"
	"strings"
	"unicode"
)

// unsafeFileRunes become dashes in file names; unsafeDropRunes are removed.
const (
	unsafeFileRunes = `/\:*`
	unsafeDropRunes = `?"<>|`
)

// SanitizeFileName makes name safe to use as a single path element on common
// filesystems. Control characters are dropped along with the characters in
// unsafeDropRunes. Path separators and a few others become dashes.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r), strings.ContainsRune(unsafeDropRunes, r):
			return -1
		case strings.ContainsRune(unsafeFileRunes, r):
			return '-'
		}
		return r
	}, name)
	return strings.TrimSpace(cleaned)
}

// SanitizeToken lowercases value and collapses every run of characters other
// than letters, digits, '-' and '_' into one underscore. Empty results become
// "unknown".
func SanitizeToken(value string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(value) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}
	if out := strings.Trim(b.String(), "_-"); out != "" {
		return out
	}
	return "unknown"
}

// TranscriptFileName names the markdown export for a media id, for example
// "week 3.mp4" becomes "week 3_transcript.md".
func TranscriptFileName(mediaID string) string {
	stem := SanitizeFileName(strings.TrimSuffix(mediaID, filepath.Ext(mediaID)))
	if stem == "" {
		stem = "untitled"
	}
	return stem + "_transcript.md"
}
