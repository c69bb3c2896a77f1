package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ent0n29/livetranslator/internal/language"
	"github.com/ent0n29/livetranslator/internal/reliability"
)

const (
	deeplFreeURL = "https://api-free.deepl.com"
	deeplProURL  = "https://api.deepl.com"
)

var deeplTargets = map[language.Language]string{
	language.English:    "EN-US",
	language.French:     "FR",
	language.German:     "DE",
	language.Spanish:    "ES",
	language.Italian:    "IT",
	language.Portuguese: "PT-PT",
}

// DeepLTargetCode returns the provider code for l.
func DeepLTargetCode(l language.Language) (string, bool) {
	code, ok := deeplTargets[l]
	return code, ok
}

// DeepLBaseURL picks the endpoint matching the key's plan: free-plan keys
// carry a ":fx" suffix.
func DeepLBaseURL(apiKey string) string {
	if strings.HasSuffix(strings.TrimSpace(apiKey), ":fx") {
		return deeplFreeURL
	}
	return deeplProURL
}

// DeepLTranslator calls the DeepL v2 translate endpoint.
type DeepLTranslator struct {
	apiKey  string
	baseURL string
	retries int
	client  *http.Client
	backoff func(attempt int) time.Duration
}

func NewDeepLTranslator(apiKey, baseURL string, timeout time.Duration, retries int) *DeepLTranslator {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DeepLBaseURL(apiKey)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &DeepLTranslator{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		retries: retries,
		client:  &http.Client{Timeout: timeout},
		backoff: func(attempt int) time.Duration {
			return reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)
		},
	}
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("deepl http status %d: %s", e.code, e.body)
}

func (t *DeepLTranslator) Translate(ctx context.Context, text string, target language.Language) (string, error) {
	code, ok := DeepLTargetCode(target)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, target)
	}

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			if err := reliability.Sleep(ctx, t.backoff(attempt-1)); err != nil {
				return "", err
			}
		}
		out, err := t.do(ctx, text, code)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return "", lastErr
}

func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.code)
	}
	return reliability.IsRetryableError(err)
}

func (t *DeepLTranslator) do(ctx context.Context, text, targetCode string) (string, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", targetCode)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v2/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+t.apiKey)

	res, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &statusError{code: res.StatusCode, body: strings.TrimSpace(string(body))}
	}

	var payload deeplResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Translations) == 0 {
		return "", fmt.Errorf("deepl response has no translations")
	}
	return payload.Translations[0].Text, nil
}
