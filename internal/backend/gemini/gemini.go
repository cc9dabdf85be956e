// Package gemini implements backend.Backend on the Gemini API.
package gemini

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/fmueller/voxnote/internal/backend"
	"github.com/fmueller/voxnote/internal/retry"
)

const (
	Provider = "gemini"

	DefaultTranscriptionModel = "gemini-2.5-flash-lite"
	DefaultSummaryModel       = "gemini-2.5-flash"

	// InlineLimit is the largest clip sent inside the request body. Larger
	// clips go through the Files API.
	InlineLimit = 15 << 20

	filePollInterval = 2 * time.Second
	filePollLimit    = 5 * time.Minute
)

type Config struct {
	APIKey             string
	TranscriptionModel string
	SummaryModel       string
	Logger             *zap.Logger
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

type Backend struct {
	transcriptionModel string
	summaryModel       string
	logger             *zap.Logger

	generate   generateFunc
	upload     func(ctx context.Context, data []byte, mimeType string) (*genai.File, error)
	getFile    func(ctx context.Context, name string) (*genai.File, error)
	deleteFile func(ctx context.Context, name string) error
	sleep      func(ctx context.Context, d time.Duration) error
}

func New(ctx context.Context, cfg Config) (*Backend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w (set GEMINI_API_KEY)", Provider, backend.ErrNoAPIKey)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}

	b := newBackend(cfg)
	b.generate = client.Models.GenerateContent
	b.upload = func(ctx context.Context, data []byte, mimeType string) (*genai.File, error) {
		return client.Files.Upload(ctx, bytes.NewReader(data), &genai.UploadFileConfig{MIMEType: mimeType})
	}
	b.getFile = func(ctx context.Context, name string) (*genai.File, error) {
		return client.Files.Get(ctx, name, nil)
	}
	b.deleteFile = func(ctx context.Context, name string) error {
		_, err := client.Files.Delete(ctx, name, nil)
		return err
	}
	return b, nil
}

func newBackend(cfg Config) *Backend {
	b := &Backend{
		transcriptionModel: cfg.TranscriptionModel,
		summaryModel:       cfg.SummaryModel,
		logger:             cfg.Logger,
		sleep:              retry.SleepContext,
	}
	if b.transcriptionModel == "" {
		b.transcriptionModel = DefaultTranscriptionModel
	}
	if b.summaryModel == "" {
		b.summaryModel = DefaultSummaryModel
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b
}

func (b *Backend) Name() string {
	return Provider
}

func (b *Backend) Transcribe(ctx context.Context, audio backend.Audio) (string, error) {
	if len(audio.Data) == 0 {
		return "", fmt.Errorf("%s: %w: empty audio", Provider, backend.ErrInvalidInput)
	}

	var audioPart *genai.Part
	if len(audio.Data) <= InlineLimit || b.upload == nil {
		audioPart = genai.NewPartFromBytes(audio.Data, audio.MIMEType)
	} else {
		file, err := b.uploadActive(ctx, audio)
		if err != nil {
			return "", err
		}
		defer b.cleanup(file.Name)
		audioPart = genai.NewPartFromURI(file.URI, file.MIMEType)
	}

	parts := []*genai.Part{
		genai.NewPartFromText(backend.TranscriptionPrompt(audio)),
		audioPart,
	}
	return b.text(ctx, b.transcriptionModel, parts)
}

func (b *Backend) Summarize(ctx context.Context, req backend.SummaryRequest) (string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("%s: %w: empty transcript", Provider, backend.ErrInvalidInput)
	}
	return b.text(ctx, b.summaryModel, []*genai.Part{genai.NewPartFromText(backend.SummaryPrompt(req))})
}

func (b *Backend) text(ctx context.Context, model string, parts []*genai.Part) (string, error) {
	resp, err := b.generate(ctx, model, []*genai.Content{{Parts: parts, Role: "user"}}, nil)
	if err != nil {
		return "", classify(err)
	}
	return responseText(resp)
}

func (b *Backend) uploadActive(ctx context.Context, audio backend.Audio) (*genai.File, error) {
	file, err := b.upload(ctx, audio.Data, audio.MIMEType)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", audio.Name, classify(err))
	}
	b.logger.Debug("uploaded audio", zap.String("file", file.Name), zap.Int("bytes", len(audio.Data)))

	deadline := time.Now().Add(filePollLimit)
	for file.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			b.cleanup(file.Name)
			return nil, fmt.Errorf("upload %s: %w: file still processing", audio.Name, retry.ErrTransient)
		}
		if err := b.sleep(ctx, filePollInterval); err != nil {
			b.cleanup(file.Name)
			return nil, err
		}
		if file, err = b.getFile(ctx, file.Name); err != nil {
			return nil, fmt.Errorf("upload %s: %w", audio.Name, classify(err))
		}
	}
	if file.State == genai.FileStateFailed {
		b.cleanup(file.Name)
		return nil, fmt.Errorf("upload %s: %w: file processing failed", audio.Name, backend.ErrInvalidInput)
	}
	return file, nil
}

func (b *Backend) cleanup(name string) {
	if b.deleteFile == nil || name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := b.deleteFile(ctx, name); err != nil {
		b.logger.Warn("delete uploaded file failed", zap.String("file", name), zap.Error(err))
	}
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%s: %w: %s", Provider, backend.ErrBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}

	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety || c.FinishReason == genai.FinishReasonProhibitedContent {
		return "", fmt.Errorf("%s: %w: %s", Provider, backend.ErrBlocked, c.FinishReason)
	}

	var sb strings.Builder
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			if part != nil && !part.Thought {
				sb.WriteString(part.Text)
			}
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", fmt.Errorf("%s: %w", Provider, backend.ErrEmptyResponse)
	}
	return text, nil
}

// classify converts API errors into backend.StatusError so that the retry
// layer sees a status code instead of a message.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &backend.StatusError{Provider: Provider, StatusCode: apiErr.Code, Message: apiErr.Message}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &backend.StatusError{Provider: Provider, StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message}
	}
	var gaxErr *apierror.APIError
	if errors.As(err, &gaxErr) && gaxErr.HTTPCode() > 0 {
		return &backend.StatusError{Provider: Provider, StatusCode: gaxErr.HTTPCode(), Message: gaxErr.Reason()}
	}
	return fmt.Errorf("%s: %w", Provider, err)
}
