package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client streams completions from an OpenAI-compatible chat endpoint.
type Client struct {
	url    string
	apiKey string
	model  string
	http   *http.Client
}

func NewClient(url string, apiKey string, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		model:  model,
		http: &http.Client{
			// Generous: covers a full plan generation, not a single chunk.
			Timeout: 120 * time.Second,
		},
	}
}

type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Stream sends the conversation upstream and invokes onDelta for every text
// fragment as it arrives. It returns the full buffered completion once the
// stream ends. onDelta errors abort the stream (client went away).
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(string) error) (string, error) {
	if c.url == "" {
		return "", errors.New("chat upstream url not configured")
	}

	body, err := json.Marshal(map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", errors.New("chat upstream returned " + resp.Status)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var ck chunk
		if err := json.Unmarshal([]byte(data), &ck); err != nil {
			// Skip malformed keepalive frames rather than killing the stream.
			continue
		}
		if len(ck.Choices) == 0 {
			continue
		}
		delta := ck.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), err
	}
	return full.String(), nil
}
