package server

import (
	"testing"

	"github.com/vocalcast/speakerd/internal/protocol"
)

func TestSubscriptionsStartEmpty(t *testing.T) {
	subs := newSubscriptions()
	if subs.matches(protocol.SourceTextToSpeech, protocol.EventPlaying) {
		t.Fatal("fresh filter must admit nothing")
	}
}

func TestSubscriptionsExactMatch(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{
		protocol.SourceTextToSpeech: {protocol.EventPlaying, protocol.EventFinished},
	})
	if !subs.matches(protocol.SourceTextToSpeech, protocol.EventPlaying) {
		t.Fatal("subscribed event not admitted")
	}
	if subs.matches(protocol.SourceTextToSpeech, protocol.EventError) {
		t.Fatal("unsubscribed type admitted")
	}
	if subs.matches(protocol.SourceApplication, protocol.EventPlaying) {
		t.Fatal("unsubscribed source admitted")
	}
}

func TestSubscriptionsTypeWildcard(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{protocol.SourceTextToSpeech: {"*"}})
	for _, typ := range protocol.KnownEvents[protocol.SourceTextToSpeech] {
		if !subs.matches(protocol.SourceTextToSpeech, typ) {
			t.Fatalf("wildcard missed type %q", typ)
		}
	}
	if subs.matches(protocol.SourceVoiceGate, protocol.EventProfileActivated) {
		t.Fatal("type wildcard must not cross sources")
	}
}

func TestSubscriptionsSourceWildcard(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{"*": {"*"}})
	for source, types := range protocol.KnownEvents {
		for _, typ := range types {
			if !subs.matches(source, typ) {
				t.Fatalf("full wildcard missed %s/%s", source, typ)
			}
		}
	}
}

func TestSubscriptionsAdditiveUnion(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{protocol.SourceTextToSpeech: {protocol.EventPlaying}})
	subs.add(map[string][]string{protocol.SourceTextToSpeech: {protocol.EventFinished}})
	if !subs.matches(protocol.SourceTextToSpeech, protocol.EventPlaying) ||
		!subs.matches(protocol.SourceTextToSpeech, protocol.EventFinished) {
		t.Fatal("second subscribe must not replace the first")
	}
}

func TestSubscriptionsRemove(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{protocol.SourceTextToSpeech: {"*"}})
	subs.remove(map[string][]string{protocol.SourceTextToSpeech: {protocol.EventPlaying}})
	if subs.matches(protocol.SourceTextToSpeech, protocol.EventPlaying) {
		t.Fatal("removed type still admitted")
	}
	if !subs.matches(protocol.SourceTextToSpeech, protocol.EventFinished) {
		t.Fatal("remove dropped unrelated type")
	}
	// Removing something never subscribed is a no-op.
	subs.remove(map[string][]string{protocol.SourceVoiceGate: {"*"}})
}

func TestSubscriptionsRemoveWildcardClearsSource(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{"*": {"*"}})
	subs.remove(map[string][]string{protocol.SourceTextToSpeech: {"*"}})
	if subs.matches(protocol.SourceTextToSpeech, protocol.EventPlaying) {
		t.Fatal("wildcard remove left types behind")
	}
	if !subs.matches(protocol.SourceApplication, protocol.EventStartedSpeaking) {
		t.Fatal("wildcard remove crossed sources")
	}
}

func TestSubscriptionsActiveSnapshot(t *testing.T) {
	subs := newSubscriptions()
	subs.add(map[string][]string{protocol.SourceTextToSpeech: {protocol.EventPlaying}})
	active := subs.active()
	if len(active) != 1 || len(active[protocol.SourceTextToSpeech]) != 1 {
		t.Fatalf("unexpected active set %v", active)
	}
}
