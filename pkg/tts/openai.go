package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Speech models offered by the OpenAI audio API.
const (
	ModelOpenAITTS1   = "tts-1"
	ModelOpenAITTS1HD = "tts-1-hd"
)

const defaultOpenAIVoice = "alloy"

// OpenAI synthesizes speech through the OpenAI audio API. Clips come
// back MP3-encoded.
type OpenAI struct {
	client     openai.Client
	model      string
	voice      string
	speed      float64
	baseURL    string
	httpClient *http.Client
}

var _ Synthesizer = (*OpenAI)(nil)

// OpenAIOption is an option for configuring the OpenAI synthesizer.
type OpenAIOption func(*OpenAI)

// WithOpenAIModel selects the speech model. Default "tts-1".
func WithOpenAIModel(model string) OpenAIOption {
	return func(o *OpenAI) { o.model = model }
}

// WithOpenAIVoice sets the voice used when a request does not name one.
// Default "alloy".
func WithOpenAIVoice(voice string) OpenAIOption {
	return func(o *OpenAI) { o.voice = voice }
}

// WithOpenAISpeed sets the speaking speed (0.25 to 4.0). Default 1.0.
func WithOpenAISpeed(speed float64) OpenAIOption {
	return func(o *OpenAI) { o.speed = speed }
}

// WithOpenAIBaseURL overrides the API endpoint. Useful for proxies and
// tests.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(o *OpenAI) { o.baseURL = url }
}

// WithOpenAIHTTPClient sets the HTTP client used for API calls.
func WithOpenAIHTTPClient(c *http.Client) OpenAIOption {
	return func(o *OpenAI) { o.httpClient = c }
}

// NewOpenAI creates an OpenAI synthesizer. The API key usually comes
// from the OPENAI_API_KEY environment variable.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAI {
	o := &OpenAI{
		model: ModelOpenAITTS1,
		voice: defaultOpenAIVoice,
		speed: 1.0,
	}
	for _, opt := range opts {
		opt(o)
	}

	ropts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if o.httpClient != nil {
		ropts = append(ropts, option.WithHTTPClient(o.httpClient))
	}
	if o.baseURL != "" {
		ropts = append(ropts, option.WithBaseURL(o.baseURL))
	}
	o.client = openai.NewClient(ropts...)
	return o
}

// Synthesize implements the Synthesizer interface.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*Result, error) {
	voice := req.Voice
	if voice == "" {
		voice = o.voice
	}

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModel(o.model),
		Input:          req.Text,
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if o.speed != 0 && o.speed != 1.0 {
		params.Speed = openai.Float(o.speed)
	}

	resp, err := o.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: reading audio: %w", err)
	}
	return &Result{Audio: audio, MIME: MIMEMP3}, nil
}

func classifyOpenAIErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden {
			return fmt.Errorf("openai: %w: %v", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("openai: %w: %v", ErrSynthesisFailed, err)
	}
	return fmt.Errorf("openai: %w: %v", ErrProviderUnavailable, err)
}
