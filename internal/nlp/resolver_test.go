package nlp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
)

type staticFetcher struct {
	entities []catalog.Entity
}

func (f *staticFetcher) FetchCatalog(ctx context.Context) ([]catalog.Entity, error) {
	return f.entities, nil
}

type fakeSearcher struct {
	entities []catalog.Entity
	err      error
	calls    int
}

func (s *fakeSearcher) SearchEntities(ctx context.Context, query string) ([]catalog.Entity, error) {
	s.calls++
	return s.entities, s.err
}

func artistEntities(names ...string) []catalog.Entity {
	var out []catalog.Entity
	for i, n := range names {
		out = append(out, catalog.Entity{
			ID:          fmt.Sprintf("ar-%d", i),
			Kind:        catalog.KindArtist,
			DisplayName: n,
		})
	}
	return out
}

func newTestResolver(t *testing.T, entities []catalog.Entity, searcher Searcher) (*Resolver, *ContextStore) {
	t.Helper()
	cache := catalog.NewCache(zerolog.Nop(), &staticFetcher{entities: entities}, catalog.DefaultCacheConfig())
	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	contexts := NewContextStore(5 * time.Minute)
	return NewResolver(zerolog.Nop(), cache, contexts, searcher, DefaultResolverConfig()), contexts
}

func TestResolve_PlayArtist(t *testing.T) {
	r, _ := newTestResolver(t, artistEntities("Beethoven", "Brahms"), nil)

	cmd, err := r.Resolve(context.Background(), "Riproduci Beethoven")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cmd.Kind != CmdPlay {
		t.Errorf("kind = %s, want %s", cmd.Kind, CmdPlay)
	}
	if cmd.Target == nil || cmd.Target.Entity == nil {
		t.Fatal("expected a bound entity target")
	}
	if cmd.Target.Entity.Name != "Beethoven" || cmd.Target.Entity.Kind != catalog.KindArtist {
		t.Errorf("bound %s:%s, want artist:Beethoven", cmd.Target.Entity.Kind, cmd.Target.Entity.Name)
	}
	if cmd.Ambiguous {
		t.Error("exact match flagged ambiguous")
	}
}

func TestResolve_ControlCommandSkipsCatalog(t *testing.T) {
	// A never-refreshed cache errors on any lookup, so a control command
	// succeeding proves the catalog was not consulted.
	cache := catalog.NewCache(zerolog.Nop(), &staticFetcher{}, catalog.DefaultCacheConfig())
	r := NewResolver(zerolog.Nop(), cache, NewContextStore(time.Minute), nil, DefaultResolverConfig())

	cmd, err := r.Resolve(context.Background(), "alza il volume")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cmd.Kind != CmdAdjustVolume || cmd.Delta != 10 {
		t.Errorf("got %s delta=%d, want adjust_volume delta=+10", cmd.Kind, cmd.Delta)
	}

	cmd, err = r.Resolve(context.Background(), "abbassa il volume")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cmd.Delta != -10 {
		t.Errorf("delta = %d, want -10", cmd.Delta)
	}
}

func TestResolve_SetVolume(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)

	cmd, err := r.Resolve(context.Background(), "volume al 70")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cmd.Kind != CmdSetVolume || cmd.Volume != 70 {
		t.Errorf("got %s volume=%d, want set_volume 70", cmd.Kind, cmd.Volume)
	}

	if _, err := r.Resolve(context.Background(), "volume al 250"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("out-of-range volume: got %v, want ErrUnknownCommand", err)
	}
}

func TestResolve_EllipticalUsesContext(t *testing.T) {
	r, contexts := newTestResolver(t, artistEntities("Beethoven"), nil)
	contexts.Set(catalog.KindArtist, "ar-9", "Vivaldi")

	cmd, err := r.Resolve(context.Background(), "metti quello")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !cmd.FromContext {
		t.Error("expected FromContext to be set")
	}
	if cmd.Target == nil || cmd.Target.Entity == nil || cmd.Target.Entity.Name != "Vivaldi" {
		t.Errorf("expected context artist Vivaldi, got %+v", cmd.Target)
	}
}

func TestResolve_EllipticalWithoutContext(t *testing.T) {
	r, _ := newTestResolver(t, artistEntities("Beethoven"), nil)

	_, err := r.Resolve(context.Background(), "metti quello")
	if !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("got %v, want ErrEntityNotFound", err)
	}
}

func TestResolve_UnknownUtterance(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)
	_, err := r.Resolve(context.Background(), "che tempo fa domani")
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("got %v, want ErrUnknownCommand", err)
	}
}

func TestResolve_AmbiguousTargetFlagged(t *testing.T) {
	r, _ := newTestResolver(t, artistEntities("Stint", "Sing"), nil)

	cmd, err := r.Resolve(context.Background(), "riproduci sting")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !cmd.Ambiguous {
		t.Error("expected ambiguous flag on multiple fuzzy matches")
	}
	if len(cmd.Suggestions) < 2 {
		t.Errorf("expected ranked suggestions, got %d", len(cmd.Suggestions))
	}
	if cmd.Target == nil || cmd.Target.Entity == nil {
		t.Error("ambiguous command must still bind the top-ranked entity")
	}
}

func TestResolve_SuccessWritesContext(t *testing.T) {
	r, contexts := newTestResolver(t, artistEntities("Beethoven"), nil)

	if _, err := r.Resolve(context.Background(), "riproduci beethoven"); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	cc := contexts.Get()
	if cc.Artist == nil || cc.Artist.Name != "Beethoven" {
		t.Errorf("expected artist context Beethoven, got %+v", cc.Artist)
	}
}

func TestResolve_RemoteSearchFallback(t *testing.T) {
	s := &fakeSearcher{entities: []catalog.Entity{
		{ID: "ar-42", Kind: catalog.KindArtist, DisplayName: "Ludovico Einaudi"},
	}}
	r, _ := newTestResolver(t, artistEntities("Beethoven"), s)

	cmd, err := r.Resolve(context.Background(), "riproduci ludovico einaudi")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if s.calls != 1 {
		t.Errorf("searcher called %d times, want 1", s.calls)
	}
	if cmd.Target.Entity.ID != "ar-42" {
		t.Errorf("expected remote entity bound, got %+v", cmd.Target.Entity)
	}
}

func TestResolve_TargetNotFound(t *testing.T) {
	r, _ := newTestResolver(t, artistEntities("Beethoven"), nil)

	_, err := r.Resolve(context.Background(), "riproduci xylophonic dreams")
	if !errors.Is(err, ErrEntityNotFound) {
		t.Errorf("got %v, want ErrEntityNotFound", err)
	}
}

func TestResolve_PlayRandomHasNoTarget(t *testing.T) {
	r, _ := newTestResolver(t, nil, nil)

	cmd, err := r.Resolve(context.Background(), "metti qualcosa a caso")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cmd.Kind != CmdPlay || cmd.Target != nil {
		t.Errorf("expected untargeted play, got %s target=%+v", cmd.Kind, cmd.Target)
	}
}
