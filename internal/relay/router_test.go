package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/observability"
	"github.com/ent0n29/livetranslator/internal/protocol"
	"github.com/ent0n29/livetranslator/internal/registry"
	"github.com/ent0n29/livetranslator/internal/translate"
)

type inbox struct {
	mu     sync.Mutex
	frames []protocol.Speech
	err    error
}

func (b *inbox) Send(payload []byte) error {
	if b.err != nil {
		return b.err
	}
	var msg protocol.Speech
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, msg)
	return nil
}

func (b *inbox) received() []protocol.Speech {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Speech(nil), b.frames...)
}

type fakeTranslator struct {
	mu     sync.Mutex
	calls  map[language.Language]int
	fail   map[language.Language]bool
	onCall func()
}

func newFakeTranslator() *fakeTranslator {
	return &fakeTranslator{calls: map[language.Language]int{}, fail: map[language.Language]bool{}}
}

func (f *fakeTranslator) Translate(_ context.Context, text string, target language.Language) (string, error) {
	f.mu.Lock()
	f.calls[target]++
	fail := f.fail[target]
	onCall := f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if fail {
		return "", errors.New("provider down")
	}
	return strings.ToLower(string(target)) + ":" + text, nil
}

func (f *fakeTranslator) count(l language.Language) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[l]
}

func (f *fakeTranslator) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type fixture struct {
	reg    *registry.Registry
	tr     *fakeTranslator
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New()
	tr := newFakeTranslator()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return &fixture{
		reg:    reg,
		tr:     tr,
		router: NewRouter(reg, translate.NewGateway(tr, nil), 0, metrics, nil),
	}
}

func (f *fixture) join(name string, lang language.Language) (registry.Handle, *inbox) {
	h := registry.NewHandle()
	b := &inbox{}
	f.reg.Insert(registry.NewSession(h, name, "id-"+name, lang, b))
	return h, b
}

func (f *fixture) status(t *testing.T, h registry.Handle) registry.Status {
	t.Helper()
	s, err := f.reg.Get(h)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return s.Status
}

func TestRouteTranslatesOncePerLanguage(t *testing.T) {
	f := newFixture(t)
	a, aBox := f.join("A", language.French)
	_, bBox := f.join("B", language.French)
	_, cBox := f.join("C", language.German)

	var sawActive atomic.Bool
	f.tr.onCall = func() {
		if s, err := f.reg.Get(a); err == nil && s.Status == registry.StatusActive {
			sawActive.Store(true)
		}
	}

	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status before route = %q", got)
	}
	out := f.router.Route(context.Background(), a, "hi")

	if f.tr.count(language.French) != 1 || f.tr.count(language.German) != 1 || f.tr.total() != 2 {
		t.Fatalf("translate calls = %v, want one French and one German", f.tr.calls)
	}
	if out.Groups != 2 || out.Recipients != 2 {
		t.Fatalf("Outcome = %+v, want 2 groups and 2 recipients", out)
	}
	if got := bBox.received(); len(got) != 1 || got[0].Text != "french:hi" || got[0].From != "A" {
		t.Fatalf("B received %+v", got)
	}
	if got := cBox.received(); len(got) != 1 || got[0].Text != "german:hi" || got[0].From != "A" {
		t.Fatalf("C received %+v", got)
	}
	if got := aBox.received(); len(got) != 0 {
		t.Fatalf("source received its own speech: %+v", got)
	}
	if !sawActive.Load() {
		t.Fatalf("source was not active during translation")
	}
	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status after route = %q, want inactive", got)
	}
}

func TestRouteSkipsActiveSessions(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	b, bBox := f.join("B", language.Spanish)
	_, cBox := f.join("C", language.Spanish)
	if err := f.reg.UpdateStatus(b, registry.StatusActive); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	f.router.Route(context.Background(), a, "hello")

	if got := bBox.received(); len(got) != 0 {
		t.Fatalf("active session received %+v", got)
	}
	if got := cBox.received(); len(got) != 1 {
		t.Fatalf("inactive session received %d frames, want 1", len(got))
	}
	if f.tr.count(language.Spanish) != 1 {
		t.Fatalf("Spanish calls = %d, want 1", f.tr.count(language.Spanish))
	}
}

func TestRouteFallsBackPerLanguage(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, frBox := f.join("B", language.French)
	_, deBox := f.join("C", language.German)
	f.tr.fail[language.French] = true

	out := f.router.Route(context.Background(), a, "hi")

	if got := frBox.received(); len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("French group received %+v, want original text", got)
	}
	if got := deBox.received(); len(got) != 1 || got[0].Text != "german:hi" {
		t.Fatalf("German group received %+v", got)
	}
	if out.Fallbacks != 1 {
		t.Fatalf("Fallbacks = %d, want 1", out.Fallbacks)
	}
}

func TestRouteResetsSourceWhenEveryTranslationFails(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, bBox := f.join("B", language.Italian)
	_, cBox := f.join("C", language.Portuguese)
	f.tr.fail[language.Italian] = true
	f.tr.fail[language.Portuguese] = true

	f.router.Route(context.Background(), a, "ciao")

	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status = %q, want inactive", got)
	}
	if len(bBox.received()) != 1 || len(cBox.received()) != 1 {
		t.Fatalf("recipients should still get the original text")
	}
}

func TestRouteResetsSourceAfterPanic(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, okBox := f.join("B", language.French)
	f.reg.Insert(registry.NewSession(registry.NewHandle(), "P", "id-p", language.French, panicSender{}))

	f.router.Route(context.Background(), a, "hi")

	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status = %q, want inactive", got)
	}
	if len(okBox.received()) != 1 {
		t.Fatalf("sibling recipient should still be served")
	}
}

type panicSender struct{}

func (panicSender) Send([]byte) error { panic("socket exploded") }

func TestRouteContainsDeliveryFailures(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	gone := &inbox{err: errors.New("connection closed")}
	f.reg.Insert(registry.NewSession(registry.NewHandle(), "gone", "id-g", language.German, gone))
	_, okBox := f.join("ok", language.German)

	out := f.router.Route(context.Background(), a, "hi")

	if len(okBox.received()) != 1 {
		t.Fatalf("healthy recipient missed delivery")
	}
	if out.Recipients != 1 {
		t.Fatalf("Recipients = %d, want 1", out.Recipients)
	}
	if f.tr.count(language.German) != 1 {
		t.Fatalf("German calls = %d, want 1", f.tr.count(language.German))
	}
}

func TestRouteWithoutRecipientsSkipsTranslation(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)

	out := f.router.Route(context.Background(), a, "anyone?")

	if f.tr.total() != 0 {
		t.Fatalf("translate calls = %d, want 0", f.tr.total())
	}
	if out.Groups != 0 {
		t.Fatalf("Groups = %d, want 0", out.Groups)
	}
	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status = %q, want inactive", got)
	}
}

func TestRouteDropsOversizeText(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, bBox := f.join("B", language.French)

	out := f.router.Route(context.Background(), a, strings.Repeat("x", DefaultMaxMessageSize+1))

	if out.Dropped != "too_large" {
		t.Fatalf("Dropped = %q, want too_large", out.Dropped)
	}
	if f.tr.total() != 0 || len(bBox.received()) != 0 {
		t.Fatalf("oversize text must not be translated or delivered")
	}
	if got := f.status(t, a); got != registry.StatusInactive {
		t.Fatalf("source status = %q, want inactive", got)
	}
}

func TestRouteFromUnregisteredSourceIsDropped(t *testing.T) {
	f := newFixture(t)
	_, bBox := f.join("B", language.French)

	out := f.router.Route(context.Background(), registry.NewHandle(), "hi")

	if out.Dropped != "unregistered" {
		t.Fatalf("Dropped = %q, want unregistered", out.Dropped)
	}
	if len(bBox.received()) != 0 {
		t.Fatalf("recipient should not receive speech from unknown source")
	}
}

func TestSlowLanguageDoesNotDelayOthers(t *testing.T) {
	reg := registry.New()
	release := make(chan struct{})
	slow := &blockingTranslator{block: language.French, release: release}
	router := NewRouter(reg, translate.NewGateway(slow, nil), 0, nil, nil)

	a := registry.NewHandle()
	reg.Insert(registry.NewSession(a, "A", "id-a", language.English, &inbox{}))
	fr, de := &inbox{}, &inbox{}
	reg.Insert(registry.NewSession(registry.NewHandle(), "B", "id-b", language.French, fr))
	reg.Insert(registry.NewSession(registry.NewHandle(), "C", "id-c", language.German, de))

	done := make(chan struct{})
	go func() {
		router.Route(context.Background(), a, "hi")
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(de.received()) == 0 {
		select {
		case <-deadline:
			close(release)
			t.Fatalf("German group blocked behind French translation")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if len(fr.received()) != 0 {
		t.Fatalf("French group delivered before its translation finished")
	}

	close(release)
	<-done
	if len(fr.received()) != 1 {
		t.Fatalf("French group never delivered")
	}
}

type blockingTranslator struct {
	block   language.Language
	release chan struct{}
}

func (b *blockingTranslator) Translate(_ context.Context, text string, target language.Language) (string, error) {
	if target == b.block {
		<-b.release
	}
	return text, nil
}

func TestRouteKeepsSenderNameWhenSourceLeaves(t *testing.T) {
	f := newFixture(t)
	a, _ := f.join("A", language.English)
	_, bBox := f.join("B", language.German)
	f.tr.onCall = func() { f.reg.Remove(a) }

	out := f.router.Route(context.Background(), a, "bye")
	if out.Recipients != 1 {
		t.Fatalf("Recipients = %d, want 1", out.Recipients)
	}
	got := bBox.received()
	if len(got) != 1 || got[0].From != "A" {
		t.Fatalf("B received %+v, want one frame from A", got)
	}
	if _, err := f.reg.Get(a); err == nil {
		t.Fatalf("source should stay removed after route")
	}
}
