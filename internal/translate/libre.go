package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/livetranslator/internal/language"
)

var libreTargets = map[language.Language]string{
	language.English:    "en",
	language.French:     "fr",
	language.German:     "de",
	language.Spanish:    "es",
	language.Italian:    "it",
	language.Portuguese: "pt",
}

// LibreTranslator talks to a LibreTranslate-compatible JSON endpoint.
type LibreTranslator struct {
	url    string
	apiKey string
	client *http.Client
}

func NewLibreTranslator(url, apiKey string, timeout time.Duration) *LibreTranslator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LibreTranslator{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: timeout},
	}
}

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

func (t *LibreTranslator) Translate(ctx context.Context, text string, target language.Language) (string, error) {
	code, ok := libreTargets[target]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, target)
	}

	payload, err := json.Marshal(libreRequest{
		Q:      text,
		Source: "auto",
		Target: code,
		Format: "text",
		APIKey: t.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", fmt.Errorf("translator http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	out := extractText(obj)
	if out == "" {
		return "", fmt.Errorf("translator response has no text")
	}
	return out, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"translatedText", "translation", "text"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
