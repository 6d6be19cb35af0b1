// Command svtwatch follows the downloads of a running server from the
// terminal, polling its snapshot endpoints.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/svtfetch/backend/internal/logger"
	"github.com/svtfetch/backend/internal/reconciler"
)

var (
	serverFlag   string
	intervalFlag time.Duration
	langFlag     string
	filesFlag    bool
	episodesFlag bool
	onceFlag     bool
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "svtwatch",
	Short: "Follow svtfetch downloads from the terminal",
	Long: `svtwatch polls a svtfetch server and redraws the job list on every tick,
newest job first. Press Enter to refresh immediately.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

func init() {
	rootCmd.Flags().StringVarP(&serverFlag, "server", "s", envOr("SVTFETCH_SERVER", "http://localhost:5000"), "Server base URL")
	rootCmd.Flags().DurationVarP(&intervalFlag, "interval", "i", reconciler.DefaultInterval, "Polling interval")
	rootCmd.Flags().StringVarP(&langFlag, "lang", "l", envOr("LANG", "sv"), "Display language (sv, en)")
	rootCmd.Flags().BoolVar(&filesFlag, "files", false, "Also list downloaded files")
	rootCmd.Flags().BoolVar(&episodesFlag, "episodes", false, "List the episodes of season jobs")
	rootCmd.Flags().BoolVar(&onceFlag, "once", false, "Render a single snapshot and exit")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "warn", "Log level for diagnostics on stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger.SetDefault(logger.New(os.Stderr, logger.ParseLevel(logLevelFlag), ""))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	texts := reconciler.NewTexts(langFromLocale(langFlag))
	renderer := reconciler.NewTextRenderer(cmd.OutOrStdout(), texts)
	renderer.Files = filesFlag
	renderer.Episodes = episodesFlag
	renderer.Clear = !onceFlag

	rec := reconciler.New(reconciler.NewClient(serverFlag), renderer, &reconciler.Config{
		Interval: intervalFlag,
		Files:    filesFlag,
	})

	if onceFlag {
		rec.Tick(ctx)
		if err := rec.View().LastError; err != nil {
			return err
		}
		return nil
	}

	go func() {
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			rec.Refresh()
		}
	}()

	if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// langFromLocale turns a POSIX locale such as sv_SE.UTF-8 into a language tag
func langFromLocale(locale string) string {
	for i, r := range locale {
		if r == '.' || r == '@' {
			locale = locale[:i]
			break
		}
	}
	out := []rune(locale)
	for i, r := range out {
		if r == '_' {
			out[i] = '-'
		}
	}
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
