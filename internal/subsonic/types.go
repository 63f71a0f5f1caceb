// Package subsonic is a client for Subsonic-compatible music servers
// (Navidrome) plus the executor that maps resolved commands onto API calls.
package subsonic

import "fmt"

// envelope is the outer object every Subsonic endpoint returns.
type envelope struct {
	Response response `json:"subsonic-response"`
}

type response struct {
	Status  string `json:"status"` // "ok" or "failed"
	Version string `json:"version"`

	Error *apiErrorBody `json:"error,omitempty"`

	Artists       *artistsIndex  `json:"artists,omitempty"`
	Genres        *genreList     `json:"genres,omitempty"`
	Playlists     *playlistList  `json:"playlists,omitempty"`
	Playlist      *Playlist      `json:"playlist,omitempty"`
	Album         *Album         `json:"album,omitempty"`
	SearchResult3 *searchResult3 `json:"searchResult3,omitempty"`
	RandomSongs   *songList      `json:"randomSongs,omitempty"`
	SongsByGenre  *songList      `json:"songsByGenre,omitempty"`
	JukeboxStatus *JukeboxStatus `json:"jukeboxStatus,omitempty"`
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type artistsIndex struct {
	Index []struct {
		Name   string   `json:"name"`
		Artist []Artist `json:"artist"`
	} `json:"index"`
}

type genreList struct {
	Genre []Genre `json:"genre"`
}

type playlistList struct {
	Playlist []Playlist `json:"playlist"`
}

type songList struct {
	Song []Song `json:"song"`
}

type searchResult3 struct {
	Artist []Artist `json:"artist"`
	Album  []Album  `json:"album"`
	Song   []Song   `json:"song"`
}

// Artist is one library artist.
type Artist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	AlbumCount int    `json:"albumCount"`
}

// Album is one library album, with its songs when fetched via getAlbum.
type Album struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Artist    string `json:"artist"`
	ArtistID  string `json:"artistId"`
	SongCount int    `json:"songCount"`
	Song      []Song `json:"song,omitempty"`
}

// Song is one playable track.
type Song struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	Genre    string `json:"genre"`
	Duration int    `json:"duration"` // seconds
}

// Playlist is a saved playlist, with entries when fetched via getPlaylist.
type Playlist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SongCount int    `json:"songCount"`
	Entry     []Song `json:"entry,omitempty"`
}

// Genre is one genre tag with its usage counts.
type Genre struct {
	Value      string `json:"value"`
	SongCount  int    `json:"songCount"`
	AlbumCount int    `json:"albumCount"`
}

// JukeboxStatus reports the server-side jukebox player state.
type JukeboxStatus struct {
	CurrentIndex int     `json:"currentIndex"`
	Playing      bool    `json:"playing"`
	Gain         float64 `json:"gain"`
	Position     int     `json:"position"`
}

func (s Song) String() string {
	return fmt.Sprintf("%s - %s", s.Artist, s.Title)
}
