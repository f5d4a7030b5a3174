package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stellarlinkco/digestbot/internal/config"
	"github.com/stellarlinkco/digestbot/internal/gateway"
	"github.com/stellarlinkco/digestbot/internal/store"
	"github.com/stellarlinkco/digestbot/internal/summary"
	"github.com/stellarlinkco/digestbot/internal/trigger"
)

// SummarizeOptions for running a one-off summary with custom dependencies
type SummarizeOptions struct {
	Day             string
	DryRun          bool
	CompleterSource summary.CompleterSource
	Now             func() time.Time
	Stdout          io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "digestbot",
	Short: "digestbot - daily group chat summaries",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (telegram + scheduler)",
	RunE:  runGateway,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize a day of the log and print it",
	RunE:  runSummarize,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show digestbot status",
	RunE:  runStatus,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Write the default config file",
	RunE:  runOnboard,
}

var (
	dayFlag    string
	dryRunFlag bool
)

func init() {
	summarizeCmd.Flags().StringVar(&dayFlag, "day", "", "Day to summarize (YYYY-MM-DD), defaults to today")
	summarizeCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Print the truncated conversation without calling the API or clearing the day")
	rootCmd.AddCommand(runCmd, summarizeCmd, statusCmd, onboardCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

// runSummarize is the command handler that uses default options
func runSummarize(cmd *cobra.Command, args []string) error {
	return runSummarizeWithOptions(SummarizeOptions{Day: dayFlag, DryRun: dryRunFlag})
}

// runSummarizeWithOptions summarizes one day with injectable dependencies for testing
func runSummarizeWithOptions(opts SummarizeOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	day := opts.Day
	if day == "" {
		day = now().In(loc).Format(gateway.DayLayout)
	} else if _, err := time.ParseInLocation(gateway.DayLayout, day, loc); err != nil {
		return fmt.Errorf("invalid day %q, want YYYY-MM-DD", day)
	}

	st, err := store.Open(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	source := opts.CompleterSource
	if source == nil {
		source = summary.NewSource(cfg)
	}
	s := summary.New(st, source, summary.OptionsFromConfig(cfg.Summary))

	if opts.DryRun {
		p, err := s.Preview(day)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Day: %s\n", p.Day)
		fmt.Fprintf(stdout, "Lines: %d (kept %d)\n", p.Total, p.Kept)
		fmt.Fprintf(stdout, "Bytes: %d (budget %d)\n\n", p.Bytes, cfg.Summary.ByteBudget)
		fmt.Fprintln(stdout, p.Conversation)
		return nil
	}

	res, err := s.Summarize(context.Background(), day)
	if err != nil && !errors.Is(err, summary.ErrNotCleared) {
		return err
	}
	fmt.Fprintln(stdout, res.Message())
	return err
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgPath := config.ConfigPath()

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.SaveConfig(config.DefaultConfig()); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s or set TELEGRAM_TOKEN and OPENAI_API_KEY\n", cfgPath)
	fmt.Println("  2. Run 'digestbot run' and send /getchatid in the group")
	fmt.Println("  3. Run 'digestbot summarize --dry-run' to inspect today's log")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Provider: %s\n", cfg.Provider.Type)
	fmt.Printf("Model: %s\n", cfg.Summary.Model)
	fmt.Printf("API Key: %s\n", maskKey(cfg.Provider.APIKey))
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)
	if cfg.Channels.Telegram.ChatID != "" {
		fmt.Printf("Destination: %s\n", cfg.Channels.Telegram.ChatID)
	} else {
		fmt.Println("Destination: not set (send /getchatid)")
	}
	if trig, err := trigger.New(cfg.Trigger); err != nil {
		fmt.Printf("Trigger: error (%v)\n", err)
	} else {
		fmt.Printf("Trigger: %s\n", trig.Name())
	}
	for _, d := range config.Diagnostics(cfg) {
		fmt.Printf("Warning: %s\n", d)
	}

	fmt.Printf("Store: %s (%s)\n", cfg.Store.Backend, cfg.Store.Path)
	if _, err := os.Stat(cfg.Store.Path); err != nil {
		fmt.Println("Log: empty")
		return nil
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		fmt.Printf("Log: error (%v)\n", err)
		return nil
	}
	defer st.Close()

	days, err := st.Days()
	if err != nil {
		fmt.Printf("Log: error (%v)\n", err)
		return nil
	}
	if len(days) == 0 {
		fmt.Println("Log: empty")
	}
	for _, d := range days {
		fmt.Printf("  %s: %d lines\n", d.Day, d.Lines)
	}
	return nil
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not set"
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "set"
	}
}
