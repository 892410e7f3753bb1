package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/cmd/speakd/internal/config"
	"github.com/haivivi/speakd/pkg/cli"
	"github.com/haivivi/speakd/pkg/daemon"
)

var (
	// Global flags
	verbose    bool
	socketFlag string
	apiKeyFlag string
	jsonOutput bool

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

// speak flags
var (
	speakVoice     string
	speakProvider  string
	speakNoCache   bool
	speakThreshold float32
	speakSkipQueue bool
	speakNoWait    bool
	speakSubmitter string
	speakFromFile  string
	speakOutput    string
	speakDirect    bool
)

var rootCmd = &cobra.Command{
	Use:   "speakd [flags] TEXT...",
	Short: "Speech daemon with a semantic TTS cache",
	Long: `speakd - speak text through a daemon that caches synthesized audio
semantically, so paraphrases of known phrases replay cached audio
instead of hitting the TTS provider again.

Running speakd with text submits a speech request, starting the daemon
first if none is running. Playback is serialized: one clip at a time,
in submission order.

Examples:
  # Speak (auto-starts the daemon on first use)
  speakd "Your order has shipped"

  # A close paraphrase reuses the cached audio
  speakd "Your order was shipped"

  # Specific provider and voice, bypassing the cache
  speakd --provider openai --voice nova --no-cache "One time announcement"

  # Jump the queue
  speakd --skip-queue "Critical alert"

  # Synthesize to a file without the daemon
  speakd --output alert.mp3 "Critical alert"

Use 'speakd daemon' to manage the daemon, 'speakd queue' to inspect
playback, and 'speakd config init' to create a config file.`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSpeak,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", "", "daemon unix socket path")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "daemon API key")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "JSON output")

	rootCmd.Flags().StringVar(&speakVoice, "voice", "", "voice name")
	rootCmd.Flags().StringVar(&speakProvider, "provider", "", "TTS provider (system, openai, gemini, piper)")
	rootCmd.Flags().BoolVar(&speakNoCache, "no-cache", false, "skip cache lookup and store")
	rootCmd.Flags().Float32Var(&speakThreshold, "threshold", 0, "semantic similarity floor (0,1]")
	rootCmd.Flags().BoolVar(&speakSkipQueue, "skip-queue", false, "play ahead of queued clips")
	rootCmd.Flags().BoolVar(&speakNoWait, "nowait", false, "fail instead of waiting for daemon readiness")
	rootCmd.Flags().StringVar(&speakSubmitter, "submitter", "", "caller name shown in queue status")
	rootCmd.Flags().StringVarP(&speakFromFile, "from-file", "f", "", "load request from YAML/JSON file (- for stdin)")
	rootCmd.Flags().StringVarP(&speakOutput, "output", "o", "", "synthesize to file without the daemon")
	rootCmd.Flags().BoolVar(&speakDirect, "direct", false, "synthesize and play in-process, bypassing the daemon")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		// Commands that need config get a clear error via GetConfig().
		// This avoids failing commands like 'speakd version'.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func runSpeak(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	req := daemon.SpeakRequest{
		Text:        strings.TrimSpace(strings.Join(args, " ")),
		Voice:       speakVoice,
		Provider:    speakProvider,
		SkipQueue:   speakSkipQueue,
		SubmittedBy: speakSubmitter,
		NoWait:      speakNoWait,
	}
	// Only an explicit flag overrides the daemon's threshold, so a
	// deliberate low value survives and an untouched flag stays unset.
	if cmd.Flags().Changed("threshold") {
		req.Threshold = &speakThreshold
	}
	if speakNoCache {
		f := false
		req.Cache = &f
	}
	if speakFromFile != "" {
		if err := loadSpeakFile(speakFromFile, &req); err != nil {
			return err
		}
	}
	if req.Text == "" {
		return errors.New("nothing to speak: pass text or --from-file (see --help)")
	}
	if req.SubmittedBy == "" {
		req.SubmittedBy = defaultSubmitter()
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if speakOutput != "" || speakDirect {
		return speakDirectly(ctx, cfg, req)
	}

	client, err := ensureDaemon(ctx, cfg)
	if err != nil {
		return err
	}
	resp, err := client.Speak(ctx, req)
	if err != nil {
		return err
	}
	return printSpeakResponse(resp)
}

// speakFile is the on-disk request shape for --from-file.
type speakFile struct {
	Text        string   `yaml:"text" json:"text"`
	Voice       string   `yaml:"voice" json:"voice"`
	Provider    string   `yaml:"provider" json:"provider"`
	Cache       *bool    `yaml:"cache" json:"cache"`
	Threshold   *float32 `yaml:"threshold" json:"threshold"`
	SkipQueue   *bool    `yaml:"skip_queue" json:"skip_queue"`
	SubmittedBy string   `yaml:"submitted_by" json:"submitted_by"`
}

// loadSpeakFile merges a YAML/JSON request file over the flag values.
// File fields that are present win.
func loadSpeakFile(path string, req *daemon.SpeakRequest) error {
	var f speakFile
	var err error
	if path == "-" {
		err = cli.LoadRequestFromStdin(&f)
	} else {
		err = cli.LoadRequest(path, &f)
	}
	if err != nil {
		return err
	}

	if f.Text != "" {
		req.Text = strings.TrimSpace(f.Text)
	}
	if f.Voice != "" {
		req.Voice = f.Voice
	}
	if f.Provider != "" {
		req.Provider = f.Provider
	}
	if f.Cache != nil {
		req.Cache = f.Cache
	}
	if f.Threshold != nil {
		req.Threshold = f.Threshold
	}
	if f.SkipQueue != nil {
		req.SkipQueue = *f.SkipQueue
	}
	if f.SubmittedBy != "" {
		req.SubmittedBy = f.SubmittedBy
	}
	return nil
}

func defaultSubmitter() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return fmt.Sprintf("pid-%d", os.Getpid())
}

func printSpeakResponse(resp *daemon.SpeakResponse) error {
	if jsonOutput {
		return cli.Output(resp, cli.OutputOptions{Format: cli.FormatJSON, Indent: "  "})
	}
	switch {
	case resp.CacheHit && resp.Similarity != nil && *resp.Similarity >= 1.0:
		cli.PrintSuccess("queued job %d (exact cache hit)", resp.JobID)
	case resp.CacheHit && resp.Similarity != nil:
		cli.PrintSuccess("queued job %d (cache hit, similarity %.3f, matched %q)",
			resp.JobID, *resp.Similarity, resp.MatchedText)
	case resp.Uncacheable:
		cli.PrintSuccess("queued job %d (synthesized, text too long to cache)", resp.JobID)
	default:
		cli.PrintSuccess("queued job %d (synthesized via %s)", resp.JobID, resp.Provider)
	}
	cli.PrintVerbose(verbose, "cancel with: speakd queue cancel %d --token %s", resp.JobID, resp.Token)
	return nil
}
