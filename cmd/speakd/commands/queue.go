package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/speakd/pkg/cli"
	"github.com/haivivi/speakd/pkg/daemon"
	"github.com/haivivi/speakd/pkg/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and control the playback queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued, playing and recently finished jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		jobs, err := newClient(cfg).Queue(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return cli.Output(jobs, cli.OutputOptions{Format: cli.FormatJSON, Indent: "  "})
		}
		if len(jobs) == 0 {
			cli.PrintInfo("queue is empty")
			return nil
		}
		printJobTable(jobs)
		return nil
	},
}

var cancelToken string

var queueCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a queued job (requires its token)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		if err := newClient(cfg).Cancel(cmd.Context(), id, cancelToken); err != nil {
			return err
		}
		cli.PrintSuccess("cancelled job %d", id)
		return nil
	},
}

var queueWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow queue activity live",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return watchQueue(ctx, newClient(cfg))
	},
}

func init() {
	queueCancelCmd.Flags().StringVar(&cancelToken, "token", "", "cancel token from the submit receipt")
	queueCmd.AddCommand(queueListCmd, queueWatchCmd, queueCancelCmd)
	rootCmd.AddCommand(queueCmd)
}

func printJobTable(jobs []queue.Job) {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tSUBMITTED BY\tTEXT")
	for _, j := range jobs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", j.ID, j.State, j.SubmittedBy, truncateText(j.Text, 60))
	}
	w.Flush()
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

const (
	watchWidth  = 100
	watchHeight = 30
)

// watchQueue follows the event feed, repainting a frame per event (and
// on a slow tick so the view stays fresh between transitions).
func watchQueue(ctx context.Context, client *daemon.Client) error {
	events, closeFeed, err := client.Events(ctx)
	if err != nil {
		return err
	}
	defer closeFeed()

	styles := cli.NewStyles(cli.DefaultTheme)
	log := cli.NewLogBuffer(128)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	repaint := func() {
		jobs, err := client.Queue(ctx)
		if err != nil {
			return
		}
		var active, recent []string
		for _, j := range jobs {
			line := fmt.Sprintf("%4d  %-9s  %s", j.ID, j.State, truncateText(j.Text, 48))
			if j.State.Terminal() {
				recent = append(recent, line)
			} else {
				active = append(active, line)
			}
		}
		frame := cli.Frame{
			Styles: styles,
			Title:  "speakd queue",
			Status: fmt.Sprintf("%d active", len(active)),
			Sections: []cli.Section{
				{Label: "Active", Content: func() []string { return active }},
				{Label: "Recent", Content: func() []string { return recent }},
				{Label: "Events", Content: func() []string { return log.Bytes() }},
			},
			Help: "Ctrl+C to quit",
		}
		// Home the cursor and clear before repainting.
		fmt.Print("\x1b[H\x1b[2J")
		fmt.Println(frame.Render(watchWidth, watchHeight))
	}

	repaint()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			repaint()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			line := fmt.Sprintf("%s  job %d -> %s", time.Now().Format("15:04:05"), ev.Job.ID, ev.Job.State)
			if ev.Job.Err != "" {
				line += " (" + ev.Job.Err + ")"
			}
			_ = log.Add(line)
			repaint()
		}
	}
}
