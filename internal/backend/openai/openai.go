// Package openai implements backend.Backend with Whisper for transcription
// and chat completions for summaries.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/fmueller/voxnote/internal/backend"
)

const (
	Provider = "openai"

	DefaultTranscriptionModel = "whisper-1"
	DefaultSummaryModel       = "gpt-4o-mini"

	// MaxUpload is the largest file the transcription endpoint accepts.
	MaxUpload = 25 << 20
)

const summarySystemPrompt = "You summarize audio transcripts into well structured Markdown notes."

type Config struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	SummaryModel       string
}

type Backend struct {
	transcriptionModel string
	summaryModel       string

	transcribe func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.Transcription, error)
	chat       func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)
}

func New(cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w (set OPENAI_API_KEY)", Provider, backend.ErrNoAPIKey)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	b := newBackend(cfg)
	b.transcribe = func(ctx context.Context, params openai.AudioTranscriptionNewParams) (*openai.Transcription, error) {
		return client.Audio.Transcriptions.New(ctx, params)
	}
	b.chat = func(ctx context.Context, params openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return client.Chat.Completions.New(ctx, params)
	}
	return b, nil
}

func newBackend(cfg Config) *Backend {
	b := &Backend{
		transcriptionModel: cfg.TranscriptionModel,
		summaryModel:       cfg.SummaryModel,
	}
	if b.transcriptionModel == "" {
		b.transcriptionModel = DefaultTranscriptionModel
	}
	if b.summaryModel == "" {
		b.summaryModel = DefaultSummaryModel
	}
	return b
}

func (b *Backend) Name() string {
	return Provider
}

func (b *Backend) UploadLimit() int64 {
	return MaxUpload
}

func (b *Backend) Transcribe(ctx context.Context, audio backend.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%s: %w: empty audio", Provider, backend.ErrInvalidInput)
	}
	if len(audio.Data) > MaxUpload {
		return "", fmt.Errorf("%s: %w: %d bytes exceeds upload limit", Provider, backend.ErrInvalidInput, len(audio.Data))
	}

	resp, err := b.transcribe(ctx, openai.AudioTranscriptionNewParams{
		File:   openai.File(bytes.NewReader(audio.Data), uploadName(audio), audio.MIMEType),
		Model:  openai.AudioModel(b.transcriptionModel),
		Prompt: openai.String(backend.TranscriptionPrompt(audio)),
	})
	if err != nil {
		return "", classify(err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}
	return text, nil
}

func (b *Backend) Summarize(ctx context.Context, req backend.SummaryRequest) (string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("%s: %w: empty transcript", Provider, backend.ErrInvalidInput)
	}

	resp, err := b.chat(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(b.summaryModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(backend.SummaryPrompt(req)),
		},
	})
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrBlocked)
	}
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}
	return text, nil
}

// uploadName gives the multipart file an extension the endpoint recognises.
func uploadName(audio backend.Audio) string {
	ext := ".flac"
	switch audio.MIMEType {
	case "audio/flac":
	case "audio/wav", "audio/x-wav":
		ext = ".wav"
	default:
		if e := filepath.Ext(audio.Name); e != "" {
			ext = strings.ToLower(e)
		}
	}
	return "segment" + ext
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return &backend.StatusError{Provider: Provider, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return fmt.Errorf("%s: %w", Provider, err)
}
