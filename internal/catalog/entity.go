// Package catalog maintains a queryable snapshot of the music library's
// entities for voice command resolution.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Kind classifies a catalog entity
type Kind string

const (
	KindArtist   Kind = "artist"
	KindAlbum    Kind = "album"
	KindTrack    Kind = "track"
	KindPlaylist Kind = "playlist"
	KindGenre    Kind = "genre"
)

// Kinds lists all entity kinds in resolution priority order: when a spoken
// target matches entities of several kinds, artists win over playlists,
// playlists over albums, and so on (mirrors how people name music).
func Kinds() []Kind {
	return []Kind{KindArtist, KindPlaylist, KindAlbum, KindGenre, KindTrack}
}

// Entity is one addressable catalog object. Entities are immutable value
// records; a new set is built on every refresh.
type Entity struct {
	ID             string `json:"id"`
	Kind           Kind   `json:"kind"`
	DisplayName    string `json:"display_name"`
	NormalizedName string `json:"normalized_name"`
	Version        uint64 `json:"version"` // Snapshot version that produced this record
}

var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Normalize folds a display name for fuzzy comparison: lowercased,
// diacritics stripped, punctuation removed, whitespace collapsed. The fold
// is deterministic so lookups are repeatable against the same snapshot.
func Normalize(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}

	var sb strings.Builder
	sb.Grow(len(folded))
	lastSpace := true
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				sb.WriteRune(' ')
				lastSpace = true
			}
		}
		// Punctuation and symbols are dropped entirely.
	}
	return strings.TrimRight(sb.String(), " ")
}
