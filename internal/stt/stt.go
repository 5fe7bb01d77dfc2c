// Package stt transcribes voice notes through the OpenAI audio API.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel    = "whisper-1"
	requestTimeout  = 30 * time.Second
)

// Transcriber sends audio to the transcription endpoint.
type Transcriber struct {
	apiKey   string
	endpoint string
	model    string
	httpc    *http.Client
}

// New builds a transcriber. An empty apiKey disables it; Transcribe then
// returns empty text without a request.
func New(apiKey string) *Transcriber {
	return &Transcriber{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		httpc:    &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether an API key is configured.
func (t *Transcriber) Enabled() bool { return t.apiKey != "" }

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Transcribe posts the audio bytes and returns the transcript.
func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !t.Enabled() {
		return "", nil
	}
	if filename == "" {
		filename = "voice.oga"
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("stt: write audio: %w", err)
	}
	if err := w.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("stt: write model field: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("stt: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("stt: status %d: %s", resp.StatusCode, msg)
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt: decode response: %w", err)
	}
	return out.Text, nil
}
