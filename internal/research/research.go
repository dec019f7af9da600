package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"polyagent/internal/logger"
	"polyagent/internal/pkg/text"
)

// Source supplies free-text context about a market.
type Source interface {
	Research(ctx context.Context, title string) (string, error)
}

const systemPrompt = "You are a research assistant for prediction markets. " +
	"Summarize recent news, expert opinion and public sentiment relevant to the question. " +
	"Be factual and concise; mention both positive and negative signals."

// ChatClient calls an OpenAI compatible /chat/completions endpoint (Perplexity by default).
type ChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 429/5xx 重试次数，0 表示默认 2 次
	MaxRetries int

	backoff time.Duration
	httpc   *http.Client
}

func NewChatClient(baseURL, apiKey, model string, timeout time.Duration, maxRetries int) *ChatClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChatClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      model,
		Timeout:    timeout,
		MaxRetries: maxRetries,
		backoff:    800 * time.Millisecond,
		httpc:      &http.Client{Timeout: timeout},
	}
}

func (c *ChatClient) Research(ctx context.Context, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("research: empty title")
	}
	user := fmt.Sprintf("Prediction market question: %q. What is the latest relevant information?", title)
	return c.call(ctx, systemPrompt, user)
}

func (c *ChatClient) endpoint() string {
	url := strings.TrimRight(c.BaseURL, "/")
	if url == "" {
		url = "https://api.perplexity.ai"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *ChatClient) call(ctx context.Context, system, user string) (string, error) {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	httpc := c.httpc
	if httpc == nil {
		httpc = &http.Client{Timeout: c.Timeout}
	}
	url := c.endpoint()
	body := map[string]any{
		"model": c.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"temperature": 0.2,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	logger.Debugf("[research] POST %s key=%s model=%s", url, maskKey(c.APIKey), c.Model)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		resp, err := httpc.Do(req)
		if err != nil {
			return "", fmt.Errorf("research request failed: %w", err)
		}
		if resp.StatusCode/100 == 2 {
			var r struct {
				Choices []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				} `json:"choices"`
			}
			derr := json.NewDecoder(resp.Body).Decode(&r)
			resp.Body.Close()
			if derr != nil {
				return "", fmt.Errorf("research decode failed: %w", derr)
			}
			if len(r.Choices) == 0 {
				return "", fmt.Errorf("research: empty choices")
			}
			out := strings.TrimSpace(r.Choices[0].Message.Content)
			logger.Debugf("[research] reply: %s", text.Truncate(out, 160))
			return out, nil
		}
		var eresp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eresp)
		resp.Body.Close()
		msg := strings.TrimSpace(eresp.Error.Message)
		if msg == "" {
			msg = resp.Status
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode, msg)
		if !retryable(resp.StatusCode) || attempt >= maxRetries {
			break
		}
		wait := retryAfter(resp.Header.Get("Retry-After"))
		if wait == 0 {
			wait = c.backoff << attempt
			if wait > 8*time.Second {
				wait = 8 * time.Second
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 4 {
		return "****" + key[len(key)-4:]
	}
	return "****"
}
