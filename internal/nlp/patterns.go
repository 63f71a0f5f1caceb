package nlp

import (
	"regexp"
)

// template is one precompiled command pattern. Patterns match against the
// normalized transcript (lowercased, diacritics and punctuation stripped).
type template struct {
	kind      CommandKind
	re        *regexp.Regexp
	hasTarget bool // capture group 1 holds the entity span
	hasLevel  bool // capture group 1 holds an absolute volume level
	delta     int  // sign of a relative volume change
	random    bool // play-random form, no target
}

// templates is the prioritized pattern set. Declaration order IS the total
// precedence order: when several templates structurally match the same
// utterance, the first declared one wins. More specific forms are therefore
// declared before the generic verbs that would swallow them ("metti in
// pausa" before "metti <X>", "volume al 70" before relative volume).
var templates = []template{
	// Info
	{kind: CmdInfo, re: regexp.MustCompile(`^(?:che (?:cosa|canzone) (?:sta suonando|e)|cosa stai riproducendo|cosa sta suonando|info|informazioni|whats playing)$`)},

	// Absolute volume: "volume al 70", "volume 70", "metti il volume a 40"
	{kind: CmdSetVolume, re: regexp.MustCompile(`^(?:metti il |imposta il )?volume (?:al? |a )?(\d{1,3})(?: percento| per cento)?$`), hasLevel: true},

	// Relative volume
	{kind: CmdAdjustVolume, re: regexp.MustCompile(`^(?:alza il volume|volume su|piu forte|piu alto|turn it up|louder)$`), delta: +1},
	{kind: CmdAdjustVolume, re: regexp.MustCompile(`^(?:abbassa il volume|volume giu|piu piano|piu basso|turn it down|quieter)$`), delta: -1},

	// Pause / resume / stop
	{kind: CmdPause, re: regexp.MustCompile(`^(?:pausa|pause|metti in pausa|in pausa)$`)},
	{kind: CmdResume, re: regexp.MustCompile(`^(?:riprendi|continua|resume|riparti|vai)$`)},
	{kind: CmdStop, re: regexp.MustCompile(`^(?:stop|ferma|ferma tutto|basta|smetti)$`)},

	// Track navigation
	{kind: CmdNext, re: regexp.MustCompile(`^(?:prossimo(?: brano)?|avanti|next|salta|canzone successiva|brano successivo)$`)},
	{kind: CmdPrevious, re: regexp.MustCompile(`^(?:precedente|indietro|previous|brano precedente|canzone precedente)$`)},

	// Modes
	{kind: CmdShuffle, re: regexp.MustCompile(`^(?:shuffle|casuale|mescola|modalita casuale)$`)},
	{kind: CmdRepeat, re: regexp.MustCompile(`^(?:ripeti|repeat|loop|modalita ripetizione)$`)},

	// Queueing: "aggiungi <X>", "metti in coda <X>"
	{kind: CmdQueueAdd, re: regexp.MustCompile(`^(?:aggiungi|accoda|metti in coda|queue) (.+)$`), hasTarget: true},

	// Random playback, no target
	{kind: CmdPlay, re: regexp.MustCompile(`^(?:riproduci|suona|metti|play) (?:musica casuale|qualcosa a caso|qualcosa|musica a caso)$`), random: true},

	// Play with target: the generic verbs go last
	{kind: CmdPlay, re: regexp.MustCompile(`^(?:riproduci|suona|metti|ascolta|play|avvia|inizia) (.+)$`), hasTarget: true},
}

// ellipticalRefs are target spans that refer back to the conversation
// context instead of naming an entity.
var ellipticalRefs = map[string]bool{
	"quello":          true,
	"quella":          true,
	"questo":          true,
	"questa":          true,
	"lo stesso":       true,
	"la stessa":       true,
	"ancora quello":   true,
	"ancora quella":   true,
	"quello di prima": true,
	"it":              true,
	"that":            true,
	"the same":        true,
	"that again":      true,
}

// matchTemplate returns the first template matching the normalized text and
// the extracted capture, if any.
func matchTemplate(text string) (*template, string, bool) {
	for i := range templates {
		t := &templates[i]
		m := t.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		capture := ""
		if len(m) > 1 {
			capture = m[1]
		}
		return t, capture, true
	}
	return nil, "", false
}

// isElliptical reports whether a target span refers back to prior context.
func isElliptical(span string) bool {
	return ellipticalRefs[span]
}
