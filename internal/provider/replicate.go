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

// ReplicateRenderer drives a lip-sync model on Replicate. Render creates a
// prediction and polls it until a terminal state, so callers see one blocking
// call bounded by RenderTimeout.
type ReplicateRenderer struct {
	BaseURL       string
	Token         string
	Version       string
	PollInterval  time.Duration
	RenderTimeout time.Duration
	Client        *http.Client
}

func NewReplicateRenderer(token, version string) *ReplicateRenderer {
	return &ReplicateRenderer{
		BaseURL:       "https://api.replicate.com",
		Token:         token,
		Version:       version,
		PollInterval:  3 * time.Second,
		RenderTimeout: 5 * time.Minute,
		Client:        &http.Client{Timeout: 30 * time.Second},
	}
}

type replicateCreateReq struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type replicatePrediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (p *ReplicateRenderer) Render(ctx context.Context, audioURL, imageURL string) (string, error) {
	if p.Client == nil {
		return "", errors.New("replicate: http client is nil")
	}
	if strings.TrimSpace(p.Token) == "" {
		return "", ErrUnavailable
	}

	version := p.Version
	if i := strings.LastIndex(version, ":"); i >= 0 {
		version = version[i+1:]
	}

	ctx, cancel := context.WithTimeout(ctx, p.RenderTimeout)
	defer cancel()

	pred, err := p.createPrediction(ctx, version, audioURL, imageURL)
	if err != nil {
		return "", err
	}

	for {
		switch pred.Status {
		case "succeeded":
			return decodeOutputURL(pred.Output)
		case "failed", "canceled":
			return "", &UpstreamError{Provider: "replicate", Err: fmt.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error)}
		}

		select {
		case <-ctx.Done():
			return "", &UpstreamError{Provider: "replicate", Err: fmt.Errorf("prediction %s: %w", pred.ID, ctx.Err())}
		case <-time.After(p.PollInterval):
		}

		pred, err = p.getPrediction(ctx, pred.ID)
		if err != nil {
			return "", err
		}
	}
}

func (p *ReplicateRenderer) createPrediction(ctx context.Context, version, audioURL, imageURL string) (*replicatePrediction, error) {
	body, err := json.Marshal(replicateCreateReq{
		Version: version,
		Input: map[string]any{
			"source_image": imageURL,
			"driven_audio": audioURL,
			"preprocess":   "full",
			"still_mode":   false,
			"use_enhancer": true,
			"batch_size":   1,
		},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/predictions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+p.Token)

	return p.doPrediction(req)
}

func (p *ReplicateRenderer) getPrediction(ctx context.Context, id string) (*replicatePrediction, error) {
	url := fmt.Sprintf("%s/v1/predictions/%s", strings.TrimRight(p.BaseURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+p.Token)

	return p.doPrediction(req)
}

func (p *ReplicateRenderer) doPrediction(req *http.Request) (*replicatePrediction, error) {
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &UpstreamError{Provider: "replicate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &UpstreamError{Provider: "replicate", Err: errors.New(msg)}
	}

	var pred replicatePrediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, &UpstreamError{Provider: "replicate", Err: err}
	}
	return &pred, nil
}

// decodeOutputURL handles both output shapes the lip-sync models return: a
// single URL string or a list of URLs.
func decodeOutputURL(raw json.RawMessage) (string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[len(many)-1], nil
	}
	return "", &UpstreamError{Provider: "replicate", Err: errors.New("prediction succeeded with no output url")}
}
