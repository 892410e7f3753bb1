package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/haivivi/speakd/cmd/speakd/internal/config"
	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/cli"
	"github.com/haivivi/speakd/pkg/daemon"
	"github.com/haivivi/speakd/pkg/embed"
	"github.com/haivivi/speakd/pkg/kv"
	"github.com/haivivi/speakd/pkg/player"
	"github.com/haivivi/speakd/pkg/tts"
)

// socketPath resolves the daemon socket: flag, then config, then the
// per-user default.
func socketPath(cfg *config.Config) string {
	if socketFlag != "" {
		return socketFlag
	}
	if cfg.Daemon.Socket != "" {
		return cfg.Daemon.Socket
	}
	return daemon.DefaultSocketPath()
}

func newClient(cfg *config.Config) *daemon.Client {
	key := apiKeyFlag
	if key == "" {
		key = cfg.Daemon.APIKey
	}
	var opts []daemon.ClientOption
	if key != "" {
		opts = append(opts, daemon.WithAPIKey(key))
	}
	return daemon.NewClient(socketPath(cfg), opts...)
}

// ensureDaemon returns a client to a ready daemon, spawning one from
// the current binary when the socket is dead. With --nowait the daemon
// must already be running.
func ensureDaemon(ctx context.Context, cfg *config.Config) (*daemon.Client, error) {
	client := newClient(cfg)
	if speakNoWait {
		if !client.Running(ctx) {
			return nil, errors.New("daemon not running (start it with 'speakd daemon start')")
		}
		return client, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own binary: %w", err)
	}
	spawn := []string{exe, "daemon", "run"}
	if socketFlag != "" {
		spawn = append(spawn, "--socket", socketFlag)
	}
	if err := client.EnsureRunning(ctx, spawn); err != nil {
		return nil, err
	}
	return client, nil
}

// buildRouter registers every provider the config has credentials for.
// The system provider is always available.
func buildRouter(ctx context.Context, cfg *config.Config) (*tts.Mux, error) {
	mux := tts.NewMux()
	if err := mux.Handle("system", tts.NewSystem()); err != nil {
		return nil, err
	}

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		var opts []tts.OpenAIOption
		if m := cfg.Providers.OpenAI.Model; m != "" {
			opts = append(opts, tts.WithOpenAIModel(m))
		}
		if v := cfg.Providers.OpenAI.Voice; v != "" {
			opts = append(opts, tts.WithOpenAIVoice(v))
		}
		if s := cfg.Providers.OpenAI.Speed; s != 0 {
			opts = append(opts, tts.WithOpenAISpeed(s))
		}
		if err := mux.Handle("openai", tts.NewOpenAI(key, opts...)); err != nil {
			return nil, err
		}
	}

	if key := cfg.Providers.Gemini.APIKey; key != "" {
		var opts []tts.GeminiOption
		if m := cfg.Providers.Gemini.Model; m != "" {
			opts = append(opts, tts.WithGeminiModel(m))
		}
		if v := cfg.Providers.Gemini.Voice; v != "" {
			opts = append(opts, tts.WithGeminiVoice(v))
		}
		g, err := tts.NewGemini(ctx, key, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini provider: %w", err)
		}
		if err := mux.Handle("gemini", g); err != nil {
			return nil, err
		}
	}

	if addr := cfg.Providers.Piper.Addr; addr != "" {
		var opts []tts.PiperOption
		if v := cfg.Providers.Piper.Voice; v != "" {
			opts = append(opts, tts.WithPiperVoice(v))
		}
		if err := mux.Handle("piper", tts.NewPiper(addr, opts...)); err != nil {
			return nil, err
		}
	}

	return mux, nil
}

// buildEmbedder creates the embedding backend named by the config.
func buildEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	var opts []embed.Option
	if m := cfg.Embedder.Model; m != "" {
		opts = append(opts, embed.WithModel(m))
	}
	if d := cfg.Embedder.Dimensions; d > 0 {
		opts = append(opts, embed.WithDimension(d))
	}

	switch strings.ToLower(cfg.Embedder.Provider) {
	case "", "openai":
		if cfg.Embedder.APIKey == "" {
			return nil, errors.New("embedder: openai API key missing (set OPENAI_API_KEY or embedder.api_key, or disable the cache)")
		}
		return embed.NewOpenAI(cfg.Embedder.APIKey, opts...), nil
	case "gemini":
		if cfg.Embedder.APIKey == "" {
			return nil, errors.New("embedder: gemini API key missing (set GEMINI_API_KEY or embedder.api_key, or disable the cache)")
		}
		return embed.NewGemini(ctx, cfg.Embedder.APIKey, opts...)
	default:
		return nil, fmt.Errorf("embedder: unknown provider %q", cfg.Embedder.Provider)
	}
}

// dataPaths resolves the data directory layout, honoring cache.dir.
func dataPaths(cfg *config.Config) (*cli.Paths, error) {
	paths, err := cli.NewPaths("speakd")
	if err != nil {
		return nil, err
	}
	if cfg.Cache.Dir != "" {
		// An override names the data dir itself, not a base to nest under.
		paths.DataBase = cfg.Cache.Dir
		paths.AppName = ""
	}
	return paths, nil
}

// buildKV opens the cache entry store on disk.
func buildKV(cfg *config.Config) (kv.Store, error) {
	paths, err := dataPaths(cfg)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDataDirs(); err != nil {
		return nil, err
	}
	return kv.NewBadger(kv.BadgerOptions{Dir: paths.CacheDir()})
}

// buildArtifacts creates the audio artifact store.
func buildArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch strings.ToLower(cfg.Artifacts.Backend) {
	case "", "local":
		paths, err := dataPaths(cfg)
		if err != nil {
			return nil, err
		}
		return artifact.NewLocal(paths.ArtifactDir())
	case "s3":
		return buildS3(ctx, cfg.Artifacts.S3)
	default:
		return nil, fmt.Errorf("artifacts: unknown backend %q", cfg.Artifacts.Backend)
	}
}

func buildS3(ctx context.Context, sc config.S3Config) (artifact.Store, error) {
	if sc.Bucket == "" {
		return nil, errors.New("artifacts: s3 backend requires a bucket")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if sc.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(sc.Region))
	}
	if sc.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if sc.Endpoint != "" {
			o.BaseEndpoint = &sc.Endpoint
			o.UsePathStyle = true
		}
	})
	return artifact.NewS3(client, sc.Bucket, sc.Prefix), nil
}

// buildSink opens the playback device, or a silent sink with no_audio.
func buildSink(cfg *config.Config) (player.Sink, error) {
	if cfg.Daemon.NoAudio {
		return &player.Silent{Realtime: true}, nil
	}
	return player.OpenDevice()
}
