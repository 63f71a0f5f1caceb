// Package nlp resolves transcribed speech into structured playback commands.
package nlp

import (
	"errors"
	"fmt"

	"github.com/zaploop/voice-assistant-navidrome/internal/catalog"
)

// Resolution errors
var (
	ErrUnknownCommand = errors.New("no command template matched")
	ErrEntityNotFound = errors.New("no catalog entity matched the target")
	ErrEmptyTarget    = errors.New("command names no target")
)

// CommandKind enumerates the closed set of playback commands.
type CommandKind string

const (
	CmdPlay         CommandKind = "play"
	CmdPause        CommandKind = "pause"
	CmdResume       CommandKind = "resume"
	CmdStop         CommandKind = "stop"
	CmdNext         CommandKind = "next"
	CmdPrevious     CommandKind = "previous"
	CmdSetVolume    CommandKind = "set_volume"
	CmdAdjustVolume CommandKind = "adjust_volume"
	CmdQueueAdd     CommandKind = "queue_add"
	CmdShuffle      CommandKind = "shuffle"
	CmdRepeat       CommandKind = "repeat"
	CmdInfo         CommandKind = "info"
)

// EntityRef points at a resolved catalog entity.
type EntityRef struct {
	ID   string       `json:"id"`
	Kind catalog.Kind `json:"kind"`
	Name string       `json:"name"`
}

// Target is what a play/queue command acts on: a resolved entity, or the
// raw query text when resolution is deferred to the remote search.
type Target struct {
	Entity   *EntityRef `json:"entity,omitempty"`
	FreeText string     `json:"free_text,omitempty"`
}

// Command is one structured, executable playback command. A Play command
// with a nil Target means "play something random".
type Command struct {
	Kind   CommandKind `json:"kind"`
	Target *Target     `json:"target,omitempty"`
	Volume int         `json:"volume,omitempty"` // SetVolume: absolute 0..100
	Delta  int         `json:"delta,omitempty"`  // AdjustVolume: signed step

	// Ambiguous is set when several catalog entities scored above the
	// similarity threshold; Suggestions carries them ranked for optional
	// confirmation by the caller.
	Ambiguous   bool            `json:"ambiguous,omitempty"`
	Suggestions []catalog.Match `json:"suggestions,omitempty"`

	// FromContext is set when the target was bound via conversation
	// context rather than the spoken text.
	FromContext bool `json:"from_context,omitempty"`

	RawText string `json:"raw_text"`
}

// NeedsEntity reports whether this command kind references a catalog entity.
func (k CommandKind) NeedsEntity() bool {
	return k == CmdPlay || k == CmdQueueAdd
}

// String renders a compact description for logs.
func (c *Command) String() string {
	switch {
	case c.Kind == CmdSetVolume:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Volume)
	case c.Kind == CmdAdjustVolume:
		return fmt.Sprintf("%s(%+d)", c.Kind, c.Delta)
	case c.Target != nil && c.Target.Entity != nil:
		return fmt.Sprintf("%s(%s:%s)", c.Kind, c.Target.Entity.Kind, c.Target.Entity.Name)
	case c.Target != nil:
		return fmt.Sprintf("%s(%q)", c.Kind, c.Target.FreeText)
	default:
		return string(c.Kind)
	}
}
