package pipeline

import (
	"lectern/internal/media"
)

// assetResolver resolves media ids of the current batch first and falls back
// to the input directory for rows written by earlier runs.
type assetResolver struct {
	known    map[string]string
	fallback media.DirResolver
}

func newAssetResolver(inputDir string, assets []media.Asset) assetResolver {
	known := make(map[string]string, len(assets))
	for _, a := range assets {
		known[a.ID] = a.Path
	}
	return assetResolver{known: known, fallback: media.DirResolver{Dir: inputDir}}
}

func (r assetResolver) Resolve(mediaID string) (string, error) {
	if path, ok := r.known[mediaID]; ok {
		return path, nil
	}
	return r.fallback.Resolve(mediaID)
}
