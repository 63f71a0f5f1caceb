package subsonic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/bus"
	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
	"github.com/zaploop/voice-assistant-navidrome/internal/nlp"
)

// Execution errors
var (
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrEmptyQueue     = errors.New("the selection has no playable tracks")
)

// PlaybackState is the local view of the jukebox player.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePlaying PlaybackState = "playing"
	StatePaused  PlaybackState = "paused"
)

const (
	maxQueueSongs   = 100
	randomBatchSize = 20
	defaultVolume   = 50
)

// Result is the outcome of one executed command: a spoken confirmation
// plus structured details for downstream consumers.
type Result struct {
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// playerState mirrors what the server-side jukebox is doing. It is a
// best-effort local model; the server remains authoritative.
type playerState struct {
	state   PlaybackState
	queue   []Song
	index   int
	volume  int
	shuffle bool
	repeat  bool
}

func (p *playerState) current() *Song {
	if p.state == StateStopped || p.index < 0 || p.index >= len(p.queue) {
		return nil
	}
	return &p.queue[p.index]
}

// Executor applies resolved commands to the music server's jukebox player
// and tracks the resulting playback state.
type Executor struct {
	client *Client
	events *bus.EventBus
	logger zerolog.Logger

	mu     sync.Mutex
	player playerState
}

// NewExecutor wires an executor to a client. events may be nil.
func NewExecutor(logger zerolog.Logger, client *Client, events *bus.EventBus) *Executor {
	return &Executor{
		client: client,
		events: events,
		logger: logger.With().Str("component", "executor").Logger(),
		player: playerState{state: StateStopped, index: -1, volume: defaultVolume},
	}
}

// Execute runs one command against the server. The command kinds form a
// closed set; an unknown kind is a programming error and is reported as
// such rather than silently ignored.
func (e *Executor) Execute(ctx context.Context, cmd *nlp.Command) (*Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		res *Result
		err error
	)
	switch cmd.Kind {
	case nlp.CmdPlay:
		res, err = e.play(ctx, cmd)
	case nlp.CmdQueueAdd:
		res, err = e.queueAdd(ctx, cmd)
	case nlp.CmdPause:
		res, err = e.pause(ctx)
	case nlp.CmdResume:
		res, err = e.resume(ctx)
	case nlp.CmdStop:
		res, err = e.stop(ctx)
	case nlp.CmdNext:
		res, err = e.skip(ctx, +1)
	case nlp.CmdPrevious:
		res, err = e.skip(ctx, -1)
	case nlp.CmdSetVolume:
		res, err = e.setVolume(ctx, cmd.Volume)
	case nlp.CmdAdjustVolume:
		res, err = e.setVolume(ctx, e.player.volume+cmd.Delta)
	case nlp.CmdShuffle:
		res, err = e.shuffle(ctx)
	case nlp.CmdRepeat:
		res, err = e.repeat()
	case nlp.CmdInfo:
		res, err = e.info()
	default:
		return nil, fmt.Errorf("unhandled command kind %q", cmd.Kind)
	}

	if err != nil {
		return nil, err
	}
	e.logger.Info().Str("command", cmd.String()).Str("state", string(e.player.state)).Msg("Command executed")
	return res, nil
}

// Status returns a snapshot of the local playback model.
func (e *Executor) Status() (PlaybackState, *Song, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player.state, e.player.current(), e.player.volume
}

func (e *Executor) play(ctx context.Context, cmd *nlp.Command) (*Result, error) {
	var (
		songs []Song
		what  string
		err   error
	)
	if cmd.Target == nil {
		songs, err = e.client.GetRandomSongs(ctx, randomBatchSize, "")
		what = "musica casuale"
	} else {
		songs, what, err = e.songsForTarget(ctx, cmd.Target)
	}
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQueue, what)
	}
	if len(songs) > maxQueueSongs {
		songs = songs[:maxQueueSongs]
	}

	params := url.Values{}
	for _, s := range songs {
		params.Add("id", s.ID)
	}
	if _, err := e.client.JukeboxControl(ctx, "set", params); err != nil {
		return nil, err
	}
	if _, err := e.client.JukeboxControl(ctx, "start", nil); err != nil {
		return nil, err
	}

	e.player.state = StatePlaying
	e.player.queue = songs
	e.player.index = 0
	e.publishState()

	return &Result{
		Message: fmt.Sprintf("Riproduco %s", what),
		Details: map[string]any{"tracks": len(songs), "first": songs[0].String()},
	}, nil
}

func (e *Executor) queueAdd(ctx context.Context, cmd *nlp.Command) (*Result, error) {
	songs, what, err := e.songsForTarget(ctx, cmd.Target)
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQueue, what)
	}

	room := maxQueueSongs - len(e.player.queue)
	if room <= 0 {
		return nil, fmt.Errorf("%w: queue is full", ErrEmptyQueue)
	}
	if len(songs) > room {
		songs = songs[:room]
	}

	params := url.Values{}
	for _, s := range songs {
		params.Add("id", s.ID)
	}
	if _, err := e.client.JukeboxControl(ctx, "add", params); err != nil {
		return nil, err
	}

	e.player.queue = append(e.player.queue, songs...)
	e.publishState()

	return &Result{
		Message: fmt.Sprintf("Ho aggiunto %s alla coda", what),
		Details: map[string]any{"tracks": len(songs)},
	}, nil
}

func (e *Executor) pause(ctx context.Context) (*Result, error) {
	if e.player.state != StatePlaying {
		return nil, ErrNothingPlaying
	}
	if _, err := e.client.JukeboxControl(ctx, "stop", nil); err != nil {
		return nil, err
	}
	e.player.state = StatePaused
	e.publishState()
	return &Result{Message: "In pausa"}, nil
}

func (e *Executor) resume(ctx context.Context) (*Result, error) {
	if e.player.state != StatePaused {
		return nil, ErrNothingPlaying
	}
	if _, err := e.client.JukeboxControl(ctx, "start", nil); err != nil {
		return nil, err
	}
	e.player.state = StatePlaying
	e.publishState()
	return &Result{Message: "Riprendo la riproduzione"}, nil
}

func (e *Executor) stop(ctx context.Context) (*Result, error) {
	if e.player.state == StateStopped {
		return nil, ErrNothingPlaying
	}
	if _, err := e.client.JukeboxControl(ctx, "stop", nil); err != nil {
		return nil, err
	}
	if _, err := e.client.JukeboxControl(ctx, "clear", nil); err != nil {
		return nil, err
	}
	e.player = playerState{state: StateStopped, index: -1, volume: e.player.volume}
	e.publishState()
	return &Result{Message: "Riproduzione fermata"}, nil
}

func (e *Executor) skip(ctx context.Context, direction int) (*Result, error) {
	if e.player.state == StateStopped {
		return nil, ErrNothingPlaying
	}

	next := e.player.index + direction
	switch {
	case next < 0:
		next = 0
	case next >= len(e.player.queue):
		if !e.player.repeat {
			return e.stop(ctx)
		}
		next = 0
	}

	params := url.Values{}
	params.Set("index", strconv.Itoa(next))
	if _, err := e.client.JukeboxControl(ctx, "skip", params); err != nil {
		return nil, err
	}
	e.player.index = next
	e.player.state = StatePlaying
	e.publishState()

	song := e.player.queue[next]
	return &Result{
		Message: fmt.Sprintf("Riproduco %s", song.Title),
		Details: map[string]any{"track": song.String()},
	}, nil
}

func (e *Executor) setVolume(ctx context.Context, volume int) (*Result, error) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	params := url.Values{}
	params.Set("gain", fmt.Sprintf("%.2f", float64(volume)/100))
	if _, err := e.client.JukeboxControl(ctx, "setGain", params); err != nil {
		return nil, err
	}

	e.player.volume = volume
	if e.events != nil {
		e.events.Publish(bus.Event{
			Type: bus.EventTypeVolumeChanged,
			Data: map[string]any{"volume": volume},
		})
	}
	return &Result{
		Message: fmt.Sprintf("Volume al %d per cento", volume),
		Details: map[string]any{"volume": volume},
	}, nil
}

func (e *Executor) shuffle(ctx context.Context) (*Result, error) {
	if e.player.state == StateStopped {
		return nil, ErrNothingPlaying
	}
	if _, err := e.client.JukeboxControl(ctx, "shuffle", nil); err != nil {
		return nil, err
	}
	e.player.shuffle = true
	// The server reorders its queue; our local copy no longer mirrors the
	// order, only the membership. Reset to the front.
	e.player.index = 0
	e.publishState()
	return &Result{Message: "Riproduzione casuale attivata"}, nil
}

// repeat toggles queue looping. The jukebox protocol has no repeat mode;
// looping is applied locally when a skip walks past the queue end.
func (e *Executor) repeat() (*Result, error) {
	e.player.repeat = !e.player.repeat
	if e.player.repeat {
		return &Result{Message: "Ripetizione attivata"}, nil
	}
	return &Result{Message: "Ripetizione disattivata"}, nil
}

func (e *Executor) info() (*Result, error) {
	song := e.player.current()
	if song == nil {
		return nil, ErrNothingPlaying
	}
	return &Result{
		Message: fmt.Sprintf("Sto riproducendo %s di %s", song.Title, song.Artist),
		Details: map[string]any{"track": song.String(), "album": song.Album},
	}, nil
}

// songsForTarget expands a resolved entity into its playable tracks.
func (e *Executor) songsForTarget(ctx context.Context, target *nlp.Target) ([]Song, string, error) {
	if target == nil || target.Entity == nil {
		return nil, "", fmt.Errorf("command carries no resolved entity")
	}
	ref := target.Entity

	switch ref.Kind {
	case catalog.KindArtist:
		songs, err := e.client.GetArtistSongs(ctx, ref.Name)
		return songs, ref.Name, err
	case catalog.KindAlbum:
		album, err := e.client.GetAlbum(ctx, ref.ID)
		if err != nil {
			return nil, ref.Name, err
		}
		return album.Song, ref.Name, nil
	case catalog.KindPlaylist:
		pl, err := e.client.GetPlaylist(ctx, ref.ID)
		if err != nil {
			return nil, ref.Name, err
		}
		return pl.Entry, ref.Name, nil
	case catalog.KindGenre:
		songs, err := e.client.GetSongsByGenre(ctx, ref.Name, maxQueueSongs)
		return songs, ref.Name, err
	case catalog.KindTrack:
		return []Song{{ID: ref.ID, Title: ref.Name}}, ref.Name, nil
	}
	return nil, ref.Name, fmt.Errorf("unknown entity kind %q", ref.Kind)
}

func (e *Executor) publishState() {
	if e.events == nil {
		return
	}
	data := map[string]any{
		"state":  string(e.player.state),
		"volume": e.player.volume,
	}
	if song := e.player.current(); song != nil {
		data["track"] = song.String()
	}
	e.events.Publish(bus.Event{Type: bus.EventTypePlaybackChanged, Data: data})
}
