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

// ElevenLabsSpeaker synthesizes MP3 audio from text. A tenant with a cloned
// voice passes its voice id; otherwise callers fall back to DefaultVoiceID.
type ElevenLabsSpeaker struct {
	BaseURL        string
	APIKey         string
	DefaultVoiceID string
	Model          string
	Client         *http.Client
}

func NewElevenLabsSpeaker(apiKey, defaultVoiceID string) *ElevenLabsSpeaker {
	return &ElevenLabsSpeaker{
		BaseURL:        "https://api.elevenlabs.io",
		APIKey:         apiKey,
		DefaultVoiceID: defaultVoiceID,
		Model:          "eleven_multilingual_v2",
		Client:         &http.Client{Timeout: 120 * time.Second},
	}
}

type elevenTTSReq struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings elevenVoiceSettings `json:"voice_settings"`
}

type elevenVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
}

func (p *ElevenLabsSpeaker) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if p.Client == nil {
		return nil, errors.New("elevenlabs: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrUnavailable
	}
	if voiceID == "" {
		voiceID = p.DefaultVoiceID
	}

	b, err := json.Marshal(elevenTTSReq{
		Text:    text,
		ModelID: p.Model,
		VoiceSettings: elevenVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			SpeakerBoost:    true,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimRight(p.BaseURL, "/"), voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: "elevenlabs", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &UpstreamError{Provider: "elevenlabs", Err: errors.New(msg)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Provider: "elevenlabs", Err: err}
	}
	if len(audio) == 0 {
		return nil, &UpstreamError{Provider: "elevenlabs", Err: errors.New("empty audio")}
	}
	return audio, nil
}
