package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqResponder talks to Groq's OpenAI-compatible chat completions API.
type GroqResponder struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

type groqMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqChatReq struct {
	Model    string    `json:"model"`
	Messages []groqMsg `json:"messages"`
	Stream   bool      `json:"stream"`
}

type groqChatResp struct {
	Choices []struct {
		Message groqMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewGroqResponder(apiKey, model string) *GroqResponder {
	return &GroqResponder{
		BaseURL: "https://api.groq.com/openai/v1",
		APIKey:  apiKey,
		Model:   model,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func (p *GroqResponder) Compose(ctx context.Context, history []Message) (string, error) {
	if p.Client == nil {
		return "", errors.New("groq: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", ErrUnavailable
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New("groq: model is required")
	}

	reqBody := groqChatReq{
		Model:  model,
		Stream: false,
		Messages: func() []groqMsg {
			out := make([]groqMsg, 0, len(history))
			for _, m := range history {
				out = append(out, groqMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", &UpstreamError{Provider: "groq", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", &UpstreamError{Provider: "groq", Err: errors.New(msg)}
	}

	var decoded groqChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &UpstreamError{Provider: "groq", Err: err}
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &UpstreamError{Provider: "groq", Err: errors.New(decoded.Error.Message)}
	}
	if len(decoded.Choices) == 0 {
		return "", &UpstreamError{Provider: "groq", Err: errors.New("empty response")}
	}
	return decoded.Choices[0].Message.Content, nil
}
