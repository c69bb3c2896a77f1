package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/protocol"
)

type options struct {
	baseURL        string
	listeners      int
	turns          int
	langs          []language.Language
	startDelay     time.Duration
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

var defaultUtterances = []string{
	"Good morning, can everyone hear me?",
	"Let's start with the quarterly numbers.",
	"Please raise your hand if you have questions.",
	"Thanks everyone, see you next week.",
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perfrelay: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "perfrelay: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var textsRaw, langsRaw string
	var startDelayMS, interTurnMS, turnTimeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8765", "relay base URL")
	flag.IntVar(&cfg.listeners, "listeners", 4, "number of listening clients")
	flag.IntVar(&cfg.turns, "turns", 10, "number of speech events to send")
	flag.StringVar(&langsRaw, "langs", "French,German,Spanish", "listener languages separated by ','; assigned round-robin")
	flag.IntVar(&startDelayMS, "start-delay-ms", 300, "delay before first speech event in milliseconds")
	flag.IntVar(&interTurnMS, "inter-turn-ms", 100, "delay between speech events in milliseconds")
	flag.IntVar(&turnTimeoutMS, "turn-timeout-ms", 15000, "timeout waiting for every listener to receive a turn")
	flag.StringVar(&textsRaw, "texts", "", "utterances separated by '|' (optional)")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print progress")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.listeners <= 0 {
		return options{}, fmt.Errorf("listeners must be > 0")
	}
	if cfg.turns <= 0 {
		return options{}, fmt.Errorf("turns must be > 0")
	}
	langs, err := parseLangs(langsRaw)
	if err != nil {
		return options{}, err
	}
	cfg.langs = langs
	if startDelayMS < 0 {
		startDelayMS = 0
	}
	if interTurnMS < 0 {
		interTurnMS = 0
	}
	if turnTimeoutMS < 1000 {
		turnTimeoutMS = 1000
	}
	cfg.startDelay = time.Duration(startDelayMS) * time.Millisecond
	cfg.interTurnDelay = time.Duration(interTurnMS) * time.Millisecond
	cfg.turnTimeout = time.Duration(turnTimeoutMS) * time.Millisecond

	cfg.texts = splitTexts(textsRaw)
	if len(cfg.texts) == 0 {
		cfg.texts = append([]string(nil), defaultUtterances...)
	}
	return cfg, nil
}

func parseLangs(raw string) ([]language.Language, error) {
	var out []language.Language
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		l, ok := language.Parse(part)
		if !ok {
			return nil, fmt.Errorf("unsupported language %q", strings.TrimSpace(part))
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("langs produced no languages")
	}
	return out, nil
}

func splitTexts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, "|") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

type listener struct {
	conn     *websocket.Conn
	received chan string
}

func run(cfg options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Minute)
	defer cancel()

	httpClient := &http.Client{Timeout: 15 * time.Second}
	wsURL, err := wsURLFor(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}

	speaker, err := connect(ctx, httpClient, cfg.baseURL, wsURL, "perf-speaker", language.English)
	if err != nil {
		return fmt.Errorf("connect speaker: %w", err)
	}
	defer speaker.Close()
	go drain(speaker)

	listeners := make([]*listener, 0, cfg.listeners)
	for i := 0; i < cfg.listeners; i++ {
		lang := cfg.langs[i%len(cfg.langs)]
		conn, err := connect(ctx, httpClient, cfg.baseURL, wsURL, fmt.Sprintf("perf-listener-%d", i+1), lang)
		if err != nil {
			return fmt.Errorf("connect listener %d: %w", i+1, err)
		}
		defer conn.Close()
		l := &listener{conn: conn, received: make(chan string, cfg.turns+1)}
		listeners = append(listeners, l)
		go readSpeech(l)
	}

	if cfg.verbose {
		fmt.Printf("perfrelay: listeners=%d langs=%v turns=%d\n", cfg.listeners, cfg.langs, cfg.turns)
	}
	if cfg.startDelay > 0 {
		time.Sleep(cfg.startDelay)
	}

	samples := make([]time.Duration, 0, cfg.turns)
	for i := 0; i < cfg.turns; i++ {
		text := fmt.Sprintf("%s #%d", cfg.texts[i%len(cfg.texts)], i+1)
		started := time.Now()
		if err := speaker.WriteJSON(protocol.Speech{Type: protocol.TypeSpeech, Text: text}); err != nil {
			return fmt.Errorf("turn %d send speech: %w", i+1, err)
		}
		if err := awaitFanOut(ctx, listeners, cfg.turnTimeout); err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		elapsed := time.Since(started)
		samples = append(samples, elapsed)
		if cfg.verbose {
			fmt.Printf("perfrelay: turn %d/%d fan-out=%s\n", i+1, cfg.turns, elapsed.Round(time.Millisecond))
		}
		if cfg.interTurnDelay > 0 && i < cfg.turns-1 {
			time.Sleep(cfg.interTurnDelay)
		}
	}

	fmt.Printf("perfrelay: p50=%s p95=%s max=%s\n",
		percentile(samples, 0.50).Round(time.Millisecond),
		percentile(samples, 0.95).Round(time.Millisecond),
		percentile(samples, 1).Round(time.Millisecond),
	)
	return nil
}

func connect(ctx context.Context, client *http.Client, baseURL, wsURL, name string, lang language.Language) (*websocket.Conn, error) {
	token, err := fetchToken(ctx, client, baseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch token: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("open websocket: %w", err)
	}
	auth := protocol.Auth{Type: protocol.TypeAuth, Token: token, Name: name, Lang: string(lang)}
	if err := conn.WriteJSON(auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}
	return conn, nil
}

func fetchToken(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/token", nil)
	if err != nil {
		return "", err
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<16))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func wsURLFor(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	return u.String(), nil
}

func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func readSpeech(l *listener) {
	defer close(l.received)
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Speech
		if err := json.Unmarshal(data, &env); err != nil || env.Type != protocol.TypeSpeech {
			continue
		}
		l.received <- env.Text
	}
}

// awaitFanOut waits until every listener has received one speech frame.
func awaitFanOut(ctx context.Context, listeners []*listener, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	missing := 0
	g, ctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		g.Go(func() error {
			select {
			case _, ok := <-l.received:
				if !ok {
					return fmt.Errorf("listener connection closed")
				}
				return nil
			case <-ctx.Done():
				mu.Lock()
				missing++
				mu.Unlock()
				return ctx.Err()
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("await fan-out (%d listeners missing): %w", missing, err)
	}
	return nil
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(q*float64(len(sorted)-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
