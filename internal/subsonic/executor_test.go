package subsonic

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
	"github.com/zaploop/voice-assistant-navidrome/internal/nlp"
)

// fakeServer records jukebox actions and serves canned library data.
type fakeServer struct {
	mu      sync.Mutex
	actions []string
	gains   []string
	*httptest.Server
}

func newFakeServer() *fakeServer {
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case strings.Contains(r.URL.Path, "jukeboxControl"):
			fs.mu.Lock()
			fs.actions = append(fs.actions, q.Get("action"))
			if g := q.Get("gain"); g != "" {
				fs.gains = append(fs.gains, g)
			}
			fs.mu.Unlock()
			fmt.Fprint(w, okBody(`,"jukeboxStatus":{"currentIndex":0,"playing":true,"gain":0.5,"position":0}`))
		case strings.Contains(r.URL.Path, "search3"):
			fmt.Fprint(w, okBody(`,"searchResult3":{"song":[{"id":"s-1","title":"Fur Elise","artist":"Beethoven"},{"id":"s-2","title":"Moonlight Sonata","artist":"Beethoven"}]}`))
		case strings.Contains(r.URL.Path, "getAlbum"):
			fmt.Fprint(w, okBody(`,"album":{"id":"al-1","name":"Kind of Blue","song":[{"id":"s-3","title":"So What","artist":"Miles Davis"}]}`))
		case strings.Contains(r.URL.Path, "getPlaylist"):
			fmt.Fprint(w, okBody(`,"playlist":{"id":"pl-1","name":"Morning","entry":[{"id":"s-4","title":"Here Comes the Sun","artist":"The Beatles"}]}`))
		case strings.Contains(r.URL.Path, "getRandomSongs"):
			fmt.Fprint(w, okBody(`,"randomSongs":{"song":[{"id":"s-5","title":"Random One","artist":"Someone"}]}`))
		case strings.Contains(r.URL.Path, "getSongsByGenre"):
			fmt.Fprint(w, okBody(`,"songsByGenre":{"song":[{"id":"s-6","title":"Blue in Green","artist":"Miles Davis","genre":"Jazz"}]}`))
		default:
			fmt.Fprint(w, errBody(70, "Data not found"))
		}
	}))
	return fs
}

func (fs *fakeServer) recorded() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]string, len(fs.actions))
	copy(out, fs.actions)
	return out
}

func newTestExecutor(t *testing.T) (*Executor, *fakeServer) {
	t.Helper()
	fs := newFakeServer()
	t.Cleanup(fs.Close)

	c := NewClient(zerolog.Nop(), testConfig(fs.URL))
	t.Cleanup(c.Close)
	return NewExecutor(zerolog.Nop(), c, nil), fs
}

func playCmd(kind catalog.Kind, id, name string) *nlp.Command {
	return &nlp.Command{
		Kind:   nlp.CmdPlay,
		Target: &nlp.Target{Entity: &nlp.EntityRef{ID: id, Kind: kind, Name: name}},
	}
}

func TestExecutor_PlayArtist(t *testing.T) {
	e, fs := newTestExecutor(t)

	res, err := e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Beethoven")
	assert.Equal(t, []string{"set", "start"}, fs.recorded())

	state, current, _ := e.Status()
	assert.Equal(t, StatePlaying, state)
	require.NotNil(t, current)
	assert.Equal(t, "Fur Elise", current.Title)
}

func TestExecutor_PlayRandomWithoutTarget(t *testing.T) {
	e, fs := newTestExecutor(t)

	res, err := e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdPlay})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "casuale")
	assert.Equal(t, []string{"set", "start"}, fs.recorded())
}

func TestExecutor_PlayAlbumAndPlaylist(t *testing.T) {
	e, _ := newTestExecutor(t)

	res, err := e.Execute(context.Background(), playCmd(catalog.KindAlbum, "al-1", "Kind of Blue"))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Kind of Blue")

	res, err = e.Execute(context.Background(), playCmd(catalog.KindPlaylist, "pl-1", "Morning"))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Morning")
}

func TestExecutor_PauseResumeStop(t *testing.T) {
	e, fs := newTestExecutor(t)

	_, err := e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdPause})
	assert.ErrorIs(t, err, ErrNothingPlaying, "pause with nothing playing must fail gracefully")

	_, err = e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdPause})
	require.NoError(t, err)
	state, _, _ := e.Status()
	assert.Equal(t, StatePaused, state)

	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdResume})
	require.NoError(t, err)
	state, _, _ = e.Status()
	assert.Equal(t, StatePlaying, state)

	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdStop})
	require.NoError(t, err)
	state, current, _ := e.Status()
	assert.Equal(t, StateStopped, state)
	assert.Nil(t, current)

	assert.Equal(t, []string{"set", "start", "stop", "start", "stop", "clear"}, fs.recorded())
}

func TestExecutor_VolumeClamped(t *testing.T) {
	e, fs := newTestExecutor(t)

	res, err := e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdSetVolume, Volume: 70})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "70")

	_, _, volume := e.Status()
	assert.Equal(t, 70, volume)

	// 70 + 40 clamps at 100.
	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdAdjustVolume, Delta: 40})
	require.NoError(t, err)
	_, _, volume = e.Status()
	assert.Equal(t, 100, volume)

	fs.mu.Lock()
	gains := append([]string(nil), fs.gains...)
	fs.mu.Unlock()
	assert.Equal(t, []string{"0.70", "1.00"}, gains)
}

func TestExecutor_NextWrapsOnlyWithRepeat(t *testing.T) {
	e, _ := newTestExecutor(t)

	_, err := e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)

	// Queue has two songs; one skip lands on the last track.
	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdNext})
	require.NoError(t, err)
	_, current, _ := e.Status()
	require.NotNil(t, current)
	assert.Equal(t, "Moonlight Sonata", current.Title)

	// Past the end without repeat the player stops.
	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdNext})
	require.NoError(t, err)
	state, _, _ := e.Status()
	assert.Equal(t, StateStopped, state)
}

func TestExecutor_RepeatLoopsQueue(t *testing.T) {
	e, _ := newTestExecutor(t)

	_, err := e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdRepeat})
	require.NoError(t, err)

	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdNext})
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdNext})
	require.NoError(t, err)

	_, current, _ := e.Status()
	require.NotNil(t, current)
	assert.Equal(t, "Fur Elise", current.Title, "repeat must wrap to the first track")
}

func TestExecutor_Info(t *testing.T) {
	e, _ := newTestExecutor(t)

	_, err := e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdInfo})
	assert.ErrorIs(t, err, ErrNothingPlaying)

	_, err = e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), &nlp.Command{Kind: nlp.CmdInfo})
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Fur Elise")
	assert.Contains(t, res.Message, "Beethoven")
}

func TestExecutor_QueueAdd(t *testing.T) {
	e, fs := newTestExecutor(t)

	_, err := e.Execute(context.Background(), playCmd(catalog.KindArtist, "ar-1", "Beethoven"))
	require.NoError(t, err)

	cmd := &nlp.Command{
		Kind:   nlp.CmdQueueAdd,
		Target: &nlp.Target{Entity: &nlp.EntityRef{ID: "pl-1", Kind: catalog.KindPlaylist, Name: "Morning"}},
	}
	res, err := e.Execute(context.Background(), cmd)
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Morning")
	assert.Equal(t, []string{"set", "start", "add"}, fs.recorded())
}

func TestExecutor_GenreTarget(t *testing.T) {
	e, _ := newTestExecutor(t)

	res, err := e.Execute(context.Background(), playCmd(catalog.KindGenre, "Jazz", "Jazz"))
	require.NoError(t, err)
	assert.Contains(t, res.Message, "Jazz")
}
