package testsupport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"lectern/internal/textutil"
	"lectern/internal/transcript"
)

// KeywordEmbedder is a deterministic embedding capability. Each vector
// counts occurrences of the configured keywords, plus one constant component
// so no text embeds to zero.
type KeywordEmbedder struct {
	Keywords []string
	ModelID  string
	// Err, when set, is returned by every call.
	Err error

	mu    sync.Mutex
	calls int
}

// Model implements the embedding capability.
func (k *KeywordEmbedder) Model() string {
	if k.ModelID == "" {
		return "keyword-test"
	}
	return k.ModelID
}

// Calls returns how many batches were embedded.
func (k *KeywordEmbedder) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

// EmbedBatch implements the embedding capability.
func (k *KeywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	k.mu.Lock()
	k.calls++
	k.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k.Err != nil {
		return nil, k.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = k.vector(text)
	}
	return out, nil
}

func (k *KeywordEmbedder) vector(text string) []float32 {
	vec := make([]float32, len(k.Keywords)+1)
	for _, w := range textutil.Tokenize(text) {
		for i, kw := range k.Keywords {
			if strings.HasPrefix(w, kw) {
				vec[i]++
			}
		}
	}
	vec[len(k.Keywords)] = 0.1
	return vec
}

// ScriptedTranscriber returns canned transcriptions keyed by file base name
// suffix. Unknown paths fail.
type ScriptedTranscriber struct {
	mu      sync.Mutex
	results map[string]transcript.Transcription
	errs    map[string]error
	paths   []string
}

// NewScriptedTranscriber returns an empty transcriber.
func NewScriptedTranscriber() *ScriptedTranscriber {
	return &ScriptedTranscriber{
		results: make(map[string]transcript.Transcription),
		errs:    make(map[string]error),
	}
}

// On registers the transcription returned for paths ending in suffix.
func (s *ScriptedTranscriber) On(suffix string, result transcript.Transcription) *ScriptedTranscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[suffix] = result
	return s
}

// Fail registers an error for paths ending in suffix.
func (s *ScriptedTranscriber) Fail(suffix string, err error) *ScriptedTranscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[suffix] = err
	return s
}

// Paths returns the paths transcribed so far.
func (s *ScriptedTranscriber) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Transcribe implements transcript.Transcriber.
func (s *ScriptedTranscriber) Transcribe(ctx context.Context, path string) (transcript.Transcription, error) {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return transcript.Transcription{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for suffix, err := range s.errs {
		if strings.HasSuffix(path, suffix) {
			return transcript.Transcription{}, err
		}
	}
	for suffix, res := range s.results {
		if strings.HasSuffix(path, suffix) {
			return res, nil
		}
	}
	return transcript.Transcription{}, errors.New("no scripted transcription for " + path)
}
