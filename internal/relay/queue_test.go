package relay

import (
	"context"
	"testing"
	"time"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/translate"
)

func TestQueueRoutesInOrder(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, bBox := f.join("B", language.English)

	q := f.router.NewQueue(context.Background(), a, 4)
	for _, text := range []string{"one", "two", "three"} {
		if !q.Enqueue(text) {
			t.Fatalf("Enqueue(%q) = false", text)
		}
	}
	q.Close()
	waitDone(t, q)

	got := bBox.received()
	if len(got) != 3 {
		t.Fatalf("received %d frames, want 3", len(got))
	}
	for i, want := range []string{"english:one", "english:two", "english:three"} {
		if got[i].Text != want {
			t.Fatalf("frame %d = %q, want %q", i, got[i].Text, want)
		}
	}
}

func TestQueueRejectsWhenFullOrClosed(t *testing.T) {
	reg := registry.New()
	release := make(chan struct{})
	router := NewRouter(reg, translate.NewGateway(&blockingTranslator{block: language.French, release: release}, nil), 0, nil, nil)
	a := registry.NewHandle()
	reg.Insert(registry.NewSession(a, "A", "id-a", language.English, &inbox{}))
	reg.Insert(registry.NewSession(registry.NewHandle(), "B", "id-b", language.French, &inbox{}))

	q := router.NewQueue(context.Background(), a, 1)
	if !q.Enqueue("first") {
		t.Fatalf("first Enqueue() = false")
	}
	// Wait until the worker is blocked inside the first route.
	deadline := time.After(2 * time.Second)
	for {
		s, _ := reg.Get(a)
		if s.Status == registry.StatusActive {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("worker never started routing")
		case <-time.After(time.Millisecond):
		}
	}

	if !q.Enqueue("second") {
		t.Fatalf("second Enqueue() = false, want buffered")
	}
	if q.Enqueue("third") {
		t.Fatalf("third Enqueue() = true, want dropped on full queue")
	}

	q.Close()
	q.Close()
	if q.Enqueue("late") {
		t.Fatalf("Enqueue() after Close = true")
	}
	close(release)
	waitDone(t, q)
}

func waitDone(t *testing.T, q *SpeechQueue) {
	t.Helper()
	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("queue worker did not finish")
	}
}
