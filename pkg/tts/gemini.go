package tts

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

// ModelGeminiTTS is the default Gemini speech generation model.
const ModelGeminiTTS = "gemini-2.5-flash-preview-tts"

const (
	defaultGeminiVoice  = "Kore"
	geminiPCMSampleRate = 24000
)

// Gemini synthesizes speech through the Gemini API. The API returns raw
// 16-bit PCM at 24kHz mono, which gets wrapped into a WAV container so
// downstream decoding stays uniform.
type Gemini struct {
	client     *genai.Client
	model      string
	voice      string
	httpClient *http.Client
}

var _ Synthesizer = (*Gemini)(nil)

// GeminiOption is an option for configuring the Gemini synthesizer.
type GeminiOption func(*Gemini)

// WithGeminiModel selects the generation model.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) { g.model = model }
}

// WithGeminiVoice sets the prebuilt voice used when a request does not
// name one. Default "Kore".
func WithGeminiVoice(voice string) GeminiOption {
	return func(g *Gemini) { g.voice = voice }
}

// WithGeminiHTTPClient sets the HTTP client used for API calls.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) { g.httpClient = c }
}

// NewGemini creates a Gemini synthesizer. The API key usually comes from
// the GEMINI_API_KEY environment variable.
func NewGemini(ctx context.Context, apiKey string, opts ...GeminiOption) (*Gemini, error) {
	g := &Gemini{
		model: ModelGeminiTTS,
		voice: defaultGeminiVoice,
	}
	for _, opt := range opts {
		opt(g)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.httpClient != nil {
		cc.HTTPClient = g.httpClient
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	g.client = client
	return g, nil
}

// Synthesize implements the Synthesizer interface.
func (g *Gemini) Synthesize(ctx context.Context, req Request) (*Result, error) {
	voice := req.Voice
	if voice == "" {
		voice = g.voice
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: req.Text}}}}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: %w: empty response", ErrSynthesisFailed)
	}

	var pcm []byte
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil {
			pcm = append(pcm, p.InlineData.Data...)
		}
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("gemini: %w: no audio part in response", ErrSynthesisFailed)
	}
	return &Result{Audio: encodeWAV(pcm, geminiPCMSampleRate, 1, 2), MIME: MIMEWAV}, nil
}

func classifyGeminiErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		switch aerr.HTTPCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("gemini: %w: %v", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("gemini: %w: %v", ErrSynthesisFailed, err)
	}
	return fmt.Errorf("gemini: %w: %v", ErrProviderUnavailable, err)
}
