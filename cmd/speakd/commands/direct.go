package commands

import (
	"context"

	"github.com/haivivi/speakd/cmd/speakd/internal/config"
	"github.com/haivivi/speakd/pkg/cli"
	"github.com/haivivi/speakd/pkg/daemon"
	"github.com/haivivi/speakd/pkg/tts"
)

// speakDirectly synthesizes in-process, bypassing the daemon and the
// cache. With --output the audio goes to a file; otherwise it plays on
// the local device.
func speakDirectly(ctx context.Context, cfg *config.Config, req daemon.SpeakRequest) error {
	router, err := buildRouter(ctx, cfg)
	if err != nil {
		return err
	}

	provider := req.Provider
	if provider == "" {
		provider = cfg.Provider
	}
	voice := req.Voice
	if voice == "" {
		voice = cfg.Voice
	}

	result, err := router.Synthesize(ctx, provider, tts.Request{Text: req.Text, Voice: voice})
	if err != nil {
		return err
	}

	if speakOutput != "" {
		if err := cli.OutputBytes(result.Audio, speakOutput); err != nil {
			return err
		}
		cli.PrintSuccess("wrote %s (%s, %s)", speakOutput, result.MIME, cli.FormatBytesInt(len(result.Audio)))
		return nil
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer sink.Close()
	return sink.Play(ctx, result.Audio)
}
