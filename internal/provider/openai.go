package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"narration-service/internal/entity"
)

const (
	DefaultTextModel   = "gpt-4o-mini"
	DefaultSpeechModel = string(openai.SpeechModelTTS1HD)
	DefaultVoice       = "onyx"

	// MaxSpeechInputChars is the upstream limit for one synthesis request.
	MaxSpeechInputChars = 4096

	defaultSystemPrompt = "You write short narration scripts meant to be read aloud. Use plain sentences, no markdown, no lists."
)

type OpenAIConfig struct {
	APIKey      string
	TextModel   string
	SpeechModel string
	Voice       string
	Speed       float64
	MaxRetries  int
	Timeout     time.Duration
	BaseURL     string       // tests
	HTTPClient  *http.Client // tests
}

func newOpenAIClient(cfg OpenAIConfig) openai.Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	// retries are owned by the error coordinator
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

type TextRequest struct {
	Title     string
	Details   string
	Category  string
	Reference string
	Prompt    string
}

// OpenAITextGenerator writes the narration script of an item through chat
// completions.
type OpenAITextGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAITextGenerator(cfg OpenAIConfig) *OpenAITextGenerator {
	model := strings.TrimSpace(cfg.TextModel)
	if model == "" {
		model = DefaultTextModel
	}
	return &OpenAITextGenerator{client: newOpenAIClient(cfg), model: model}
}

func (g *OpenAITextGenerator) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	system := strings.TrimSpace(req.Prompt)
	if system == "" {
		system = defaultSystemPrompt
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(userPrompt(req)),
		},
	})
	if err != nil {
		return "", mapOpenAIError("generate text", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Code: entity.CodeServiceUnavailable, Op: "generate text", Err: errors.New("no choices returned")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Code: entity.CodeServiceUnavailable, Op: "generate text", Err: errors.New("empty completion")}
	}
	return text, nil
}

func userPrompt(req TextRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", req.Title)
	if req.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", req.Category)
	}
	fmt.Fprintf(&b, "Details:\n%s\n", req.Details)
	if req.Reference != "" {
		fmt.Fprintf(&b, "Reference: %s\n", req.Reference)
	}
	return b.String()
}

type SpeechRequest struct {
	Text  string
	Voice string
}

type Speech struct {
	Audio    []byte
	Format   string
	Duration float64 // seconds, estimated
}

// OpenAISynthesizer turns one text chunk into mp3 audio.
type OpenAISynthesizer struct {
	client openai.Client
	model  string
	voice  string
	speed  float64
}

func NewOpenAISynthesizer(cfg OpenAIConfig) *OpenAISynthesizer {
	s := &OpenAISynthesizer{
		client: newOpenAIClient(cfg),
		model:  strings.TrimSpace(cfg.SpeechModel),
		voice:  strings.TrimSpace(cfg.Voice),
		speed:  cfg.Speed,
	}
	if s.model == "" {
		s.model = DefaultSpeechModel
	}
	if s.voice == "" {
		s.voice = DefaultVoice
	}
	if s.speed <= 0 {
		s.speed = 1.0
	}
	return s
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, req SpeechRequest) (Speech, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return Speech{}, &Error{Code: entity.CodeValidation, Op: "synthesize", Err: errors.New("text is required")}
	}
	if len([]rune(text)) > MaxSpeechInputChars {
		return Speech{}, &Error{Code: entity.CodeValidation, Op: "synthesize", Err: fmt.Errorf("text longer than %d characters", MaxSpeechInputChars)}
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = s.voice
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(s.model),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		Speed:          openai.Float(s.speed),
	})
	if err != nil {
		return Speech{}, mapOpenAIError("synthesize", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return Speech{}, mapOpenAIError("read speech", err)
	}
	if len(audio) == 0 {
		return Speech{}, &Error{Code: entity.CodeServiceUnavailable, Op: "synthesize", Err: errors.New("empty audio")}
	}
	return Speech{Audio: audio, Format: "mp3", Duration: EstimateDuration(text, s.speed)}, nil
}

// EstimateDuration assumes ~150 words per minute at speed 1.0.
func EstimateDuration(text string, speed float64) float64 {
	if speed <= 0 {
		speed = 1
	}
	words := len(strings.Fields(text))
	return float64(words) / 150 * 60 / speed
}
