package subsonic

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
	"github.com/zaploop/voice-assistant-navidrome/internal/metrics"
)

// Config holds connection settings for a Subsonic-compatible server.
type Config struct {
	BaseURL    string
	Username   string
	Password   string
	ClientName string
	APIVersion string

	Timeout        time.Duration
	PoolSize       int
	MaxRetries     int
	RetryBaseDelay time.Duration
	BackoffFactor  float64

	CacheTTL       time.Duration
	SearchCacheTTL time.Duration
	CacheMaxSize   int

	BatchWindow time.Duration
	BatchSize   int
}

// DefaultConfig returns settings for a local Navidrome instance.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:4533",
		ClientName:     "voiced",
		APIVersion:     "1.16.1",
		Timeout:        30 * time.Second,
		PoolSize:       10,
		MaxRetries:     3,
		RetryBaseDelay: 250 * time.Millisecond,
		BackoffFactor:  1.5,
		CacheTTL:       15 * time.Minute,
		SearchCacheTTL: 2 * time.Minute,
		CacheMaxSize:   500,
		BatchWindow:    100 * time.Millisecond,
		BatchSize:      5,
	}
}

// Client talks to the server over its REST API. Responses for read
// endpoints are cached with a TTL; searches are coalesced through a
// batching window. Safe for concurrent use.
type Client struct {
	config  Config
	http    *http.Client
	cache   *responseCache
	batcher *searchBatcher
	logger  zerolog.Logger
}

// NewClient builds a pooled client. Call Close to release the batcher.
func NewClient(logger zerolog.Logger, config Config) *Client {
	if config.APIVersion == "" {
		config.APIVersion = "1.16.1"
	}
	if config.ClientName == "" {
		config.ClientName = "voiced"
	}
	if config.PoolSize <= 0 {
		config.PoolSize = 10
	}
	if config.BackoffFactor <= 1 {
		config.BackoffFactor = 1.5
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 250 * time.Millisecond
	}

	c := &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        config.PoolSize,
				MaxIdleConnsPerHost: config.PoolSize,
				MaxConnsPerHost:     config.PoolSize,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:  newResponseCache(config.CacheMaxSize),
		logger: logger.With().Str("component", "subsonic").Logger(),
	}
	c.batcher = newSearchBatcher(c, config.BatchWindow, config.BatchSize)
	return c
}

// Close stops the search batcher.
func (c *Client) Close() {
	c.batcher.stop()
}

// authParams builds the per-request token auth query: a random salt and
// md5(password + salt), per the protocol's token scheme.
func (c *Client) authParams() url.Values {
	buf := make([]byte, 8)
	rand.Read(buf)
	salt := hex.EncodeToString(buf)
	sum := md5.Sum([]byte(c.config.Password + salt))

	v := url.Values{}
	v.Set("u", c.config.Username)
	v.Set("t", hex.EncodeToString(sum[:]))
	v.Set("s", salt)
	v.Set("v", c.config.APIVersion)
	v.Set("c", c.config.ClientName)
	v.Set("f", "json")
	return v
}

// get calls one REST endpoint with retry. When ttl > 0 the decoded
// response is served from and stored into the TTL cache, keyed by the
// endpoint and its non-auth parameters.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, ttl time.Duration) (*response, error) {
	var key string
	if ttl > 0 {
		key = endpoint + "?" + params.Encode()
		if resp, ok := c.cache.get(key); ok {
			metrics.RemoteCacheHits.WithLabelValues("hit").Inc()
			return resp, nil
		}
		metrics.RemoteCacheHits.WithLabelValues("miss").Inc()
	}

	var resp *response
	err := c.withRetry(ctx, endpoint, func() error {
		var err error
		resp, err = c.doRequest(ctx, endpoint, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	if ttl > 0 {
		c.cache.put(key, resp, ttl)
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (*response, error) {
	q := c.authParams()
	for k, vals := range params {
		for _, v := range vals {
			q.Add(k, v)
		}
	}
	reqURL := fmt.Sprintf("%s/rest/%s?%s", c.config.BaseURL, endpoint, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, httpResp.Body)
		return nil, fmt.Errorf("%s returned HTTP %d", endpoint, httpResp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(httpResp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	if env.Response.Status != "ok" {
		apiErr := &APIError{Code: codeGeneric, Message: "unknown error"}
		if env.Response.Error != nil {
			apiErr.Code = env.Response.Error.Code
			apiErr.Message = env.Response.Error.Message
		}
		return nil, apiErr
	}
	return &env.Response, nil
}

// Ping verifies connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", url.Values{}, 0)
	return err
}

// Search runs a coalesced search3 query. Concurrent identical queries
// within the batching window share one request.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	return c.batcher.search(ctx, query)
}

// SearchResult groups search3 hits by kind.
type SearchResult struct {
	Artists []Artist
	Albums  []Album
	Songs   []Song
}

func (c *Client) search3(ctx context.Context, query string) (*SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("artistCount", "5")
	params.Set("albumCount", "5")
	params.Set("songCount", "10")

	resp, err := c.get(ctx, "search3", params, c.config.SearchCacheTTL)
	if err != nil {
		return nil, err
	}

	out := &SearchResult{}
	if resp.SearchResult3 != nil {
		out.Artists = resp.SearchResult3.Artist
		out.Albums = resp.SearchResult3.Album
		out.Songs = resp.SearchResult3.Song
	}
	return out, nil
}

// GetArtists returns all library artists.
func (c *Client) GetArtists(ctx context.Context) ([]Artist, error) {
	resp, err := c.get(ctx, "getArtists", url.Values{}, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	var out []Artist
	if resp.Artists != nil {
		for _, idx := range resp.Artists.Index {
			out = append(out, idx.Artist...)
		}
	}
	return out, nil
}

// GetGenres returns all genre tags.
func (c *Client) GetGenres(ctx context.Context) ([]Genre, error) {
	resp, err := c.get(ctx, "getGenres", url.Values{}, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	if resp.Genres == nil {
		return nil, nil
	}
	return resp.Genres.Genre, nil
}

// GetPlaylists returns all saved playlists.
func (c *Client) GetPlaylists(ctx context.Context) ([]Playlist, error) {
	resp, err := c.get(ctx, "getPlaylists", url.Values{}, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return nil, nil
	}
	return resp.Playlists.Playlist, nil
}

// GetAlbum returns one album with its songs.
func (c *Client) GetAlbum(ctx context.Context, id string) (*Album, error) {
	params := url.Values{}
	params.Set("id", id)
	resp, err := c.get(ctx, "getAlbum", params, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, fmt.Errorf("getAlbum %s: %w", id, ErrNotFound)
	}
	return resp.Album, nil
}

// GetPlaylist returns one playlist with its entries.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	params := url.Values{}
	params.Set("id", id)
	resp, err := c.get(ctx, "getPlaylist", params, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	if resp.Playlist == nil {
		return nil, fmt.Errorf("getPlaylist %s: %w", id, ErrNotFound)
	}
	return resp.Playlist, nil
}

// GetRandomSongs returns up to size random tracks, optionally restricted
// to one genre. Never cached.
func (c *Client) GetRandomSongs(ctx context.Context, size int, genre string) ([]Song, error) {
	params := url.Values{}
	params.Set("size", fmt.Sprintf("%d", size))
	if genre != "" {
		params.Set("genre", genre)
	}
	resp, err := c.get(ctx, "getRandomSongs", params, 0)
	if err != nil {
		return nil, err
	}
	if resp.RandomSongs == nil {
		return nil, nil
	}
	return resp.RandomSongs.Song, nil
}

// GetSongsByGenre returns tracks tagged with the genre.
func (c *Client) GetSongsByGenre(ctx context.Context, genre string, count int) ([]Song, error) {
	params := url.Values{}
	params.Set("genre", genre)
	params.Set("count", fmt.Sprintf("%d", count))
	resp, err := c.get(ctx, "getSongsByGenre", params, c.config.CacheTTL)
	if err != nil {
		return nil, err
	}
	if resp.SongsByGenre == nil {
		return nil, nil
	}
	return resp.SongsByGenre.Song, nil
}

// GetArtistSongs returns tracks for an artist via search, since not every
// server implements getTopSongs.
func (c *Client) GetArtistSongs(ctx context.Context, artistName string) ([]Song, error) {
	result, err := c.Search(ctx, artistName)
	if err != nil {
		return nil, err
	}
	return result.Songs, nil
}

// JukeboxControl drives the server-side jukebox player. Never cached and
// never retried beyond the transport layer, since actions are not all
// idempotent.
func (c *Client) JukeboxControl(ctx context.Context, action string, params url.Values) (*JukeboxStatus, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("action", action)

	resp, err := c.doRequest(ctx, "jukeboxControl", params)
	if err != nil {
		if transient(err) {
			return nil, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
		}
		return nil, err
	}
	return resp.JukeboxStatus, nil
}

// FetchCatalog implements catalog.Fetcher: artists, playlists and genres
// from their listing endpoints. Individual tracks and albums resolve
// through the search fallback instead of being bulk-loaded.
func (c *Client) FetchCatalog(ctx context.Context) ([]catalog.Entity, error) {
	artists, err := c.GetArtists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch artists: %w", err)
	}
	genres, err := c.GetGenres(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch genres: %w", err)
	}
	playlists, err := c.GetPlaylists(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch playlists: %w", err)
	}

	entities := make([]catalog.Entity, 0, len(artists)+len(genres)+len(playlists))
	for _, a := range artists {
		entities = append(entities, catalog.Entity{ID: a.ID, Kind: catalog.KindArtist, DisplayName: a.Name})
	}
	for _, g := range genres {
		// Genres have no server-side ID; the name is the identifier.
		entities = append(entities, catalog.Entity{ID: g.Value, Kind: catalog.KindGenre, DisplayName: g.Value})
	}
	for _, p := range playlists {
		entities = append(entities, catalog.Entity{ID: p.ID, Kind: catalog.KindPlaylist, DisplayName: p.Name})
	}
	return entities, nil
}

// SearchEntities implements the resolver's remote fallback: a live search
// mapped onto catalog entities, artists first.
func (c *Client) SearchEntities(ctx context.Context, query string) ([]catalog.Entity, error) {
	result, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	var entities []catalog.Entity
	for _, a := range result.Artists {
		entities = append(entities, catalog.Entity{ID: a.ID, Kind: catalog.KindArtist, DisplayName: a.Name})
	}
	for _, al := range result.Albums {
		entities = append(entities, catalog.Entity{ID: al.ID, Kind: catalog.KindAlbum, DisplayName: al.Name})
	}
	for _, s := range result.Songs {
		entities = append(entities, catalog.Entity{ID: s.ID, Kind: catalog.KindTrack, DisplayName: s.Title})
	}
	return entities, nil
}
