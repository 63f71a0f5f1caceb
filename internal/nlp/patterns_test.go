package nlp

import "testing"

func TestMatchTemplate_Precedence(t *testing.T) {
	cases := []struct {
		in      string
		kind    CommandKind
		capture string
	}{
		// "metti in pausa" must not be swallowed by the generic play verb.
		{"metti in pausa", CmdPause, ""},
		{"metti beethoven", CmdPlay, "beethoven"},
		{"metti in coda beethoven", CmdQueueAdd, "beethoven"},
		{"riproduci i notturni di chopin", CmdPlay, "i notturni di chopin"},
		{"suona qualcosa", CmdPlay, ""},
		{"riproduci musica casuale", CmdPlay, ""},
		{"volume al 70", CmdSetVolume, "70"},
		{"metti il volume a 40", CmdSetVolume, "40"},
		{"alza il volume", CmdAdjustVolume, ""},
		{"abbassa il volume", CmdAdjustVolume, ""},
		{"piu forte", CmdAdjustVolume, ""},
		{"pausa", CmdPause, ""},
		{"riprendi", CmdResume, ""},
		{"ferma tutto", CmdStop, ""},
		{"prossimo brano", CmdNext, ""},
		{"precedente", CmdPrevious, ""},
		{"shuffle", CmdShuffle, ""},
		{"modalita casuale", CmdShuffle, ""},
		{"ripeti", CmdRepeat, ""},
		{"cosa stai riproducendo", CmdInfo, ""},
		{"play the beatles", CmdPlay, "the beatles"},
		{"next", CmdNext, ""},
		{"aggiungi jazz", CmdQueueAdd, "jazz"},
	}
	for _, c := range cases {
		tpl, capture, ok := matchTemplate(c.in)
		if !ok {
			t.Errorf("matchTemplate(%q): no template matched", c.in)
			continue
		}
		if tpl.kind != c.kind {
			t.Errorf("matchTemplate(%q) kind = %s, want %s", c.in, tpl.kind, c.kind)
		}
		if capture != c.capture {
			t.Errorf("matchTemplate(%q) capture = %q, want %q", c.in, capture, c.capture)
		}
	}
}

func TestMatchTemplate_NoMatch(t *testing.T) {
	for _, in := range []string{"", "che tempo fa domani", "accendi le luci"} {
		if _, _, ok := matchTemplate(in); ok {
			t.Errorf("matchTemplate(%q) matched, want no match", in)
		}
	}
}

func TestMatchTemplate_RandomBeforeTarget(t *testing.T) {
	tpl, _, ok := matchTemplate("metti qualcosa a caso")
	if !ok || tpl.kind != CmdPlay || !tpl.random {
		t.Errorf("expected random play template, got %+v ok=%v", tpl, ok)
	}
}

func TestIsElliptical(t *testing.T) {
	for _, span := range []string{"quello", "quella", "lo stesso", "that again"} {
		if !isElliptical(span) {
			t.Errorf("isElliptical(%q) = false, want true", span)
		}
	}
	if isElliptical("beethoven") {
		t.Error("isElliptical(beethoven) = true, want false")
	}
}
