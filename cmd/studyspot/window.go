package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/studyspot/internal/config"
	"github.com/goodtune/studyspot/internal/session"
	"github.com/goodtune/studyspot/internal/study"
	"github.com/spf13/cobra"
)

var (
	windowStart    string
	windowEnd      string
	windowAt       string
	windowTimezone string
)

var windowCmd = &cobra.Command{
	Use:   "window",
	Short: "Check how a study window would be interpreted",
	Long:  `Show the absolute window studyspot would record for a start and end time, including midnight rollover.`,
	Example: `  studyspot window --start "10:00 PM" --end "1:00 AM"
  studyspot -c config.yaml window --start 9am --end 11am --at "2026-10-16 10:30"`,
	RunE: runWindow,
}

func init() {
	windowCmd.Flags().StringVar(&windowStart, "start", "", "Start time, e.g. \"3:00 PM\" (required)")
	windowCmd.Flags().StringVar(&windowEnd, "end", "", "End time, e.g. \"5:30 PM\" (required)")
	windowCmd.Flags().StringVar(&windowAt, "at", "", "Evaluate at this local time (YYYY-MM-DD HH:MM) - defaults to now")
	windowCmd.Flags().StringVar(&windowTimezone, "timezone", "", "Time zone - defaults to study.timezone from the configuration")
	_ = windowCmd.MarkFlagRequired("start")
	_ = windowCmd.MarkFlagRequired("end")
	rootCmd.AddCommand(windowCmd)
}

func runWindow(cmd *cobra.Command, args []string) error {
	loc, err := windowLocation()
	if err != nil {
		return err
	}

	start, err := session.ParseClock(windowStart)
	if err != nil {
		return fmt.Errorf("invalid start time: %w", err)
	}
	end, err := session.ParseClock(windowEnd)
	if err != nil {
		return fmt.Errorf("invalid end time: %w", err)
	}

	now := time.Now()
	if windowAt != "" {
		now, err = time.ParseInLocation("2006-01-02 15:04", windowAt, loc)
		if err != nil {
			return fmt.Errorf("invalid --at value %q: %w", windowAt, err)
		}
	}

	return printWindow(cmd.OutOrStdout(), now, loc, start, end)
}

// windowLocation resolves --timezone, falling back to the configured zone
func windowLocation() (*time.Location, error) {
	if windowTimezone != "" {
		return config.StudyConfig{Timezone: windowTimezone}.Location()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg.Study.Location()
}

// printWindow reports the normalized window for start and end evaluated at now
func printWindow(w io.Writer, now time.Time, loc *time.Location, start, end session.ClockTime) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)

	win, err := session.NormalizeWindow(now, loc, start, end)
	if err != nil {
		return err
	}

	_, _ = cyan.Fprintln(w, "Study Window")
	_, _ = fmt.Fprintf(w, "  Evaluated at: %s\n", now.In(loc).Format("Mon 2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(w, "  Start:        %s\n", win.Start.Format("Mon 2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(w, "  End:          %s\n", win.End.Format("Mon 2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(w, "  Duration:     %s\n", win.Duration())
	_, _ = fmt.Fprintf(w, "  Announced as: %s\n", study.FormatRange(win, loc))

	if win.RolledOver() {
		_, _ = yellow.Fprintln(w, "  ⚠️  End is not after start, rolled over to the next day")
	}

	switch {
	case !win.End.After(now):
		_, _ = red.Fprintln(w, "\n❌ REJECTED: the window has already ended")
		return session.ErrWindowElapsed
	case win.Start.After(now):
		_, _ = green.Fprintf(w, "\n✅ ACCEPTED: starts in %s\n", win.Start.Sub(now).Round(time.Minute))
	default:
		_, _ = green.Fprintf(w, "\n✅ ACCEPTED: %s remaining\n", win.End.Sub(now).Round(time.Minute))
	}

	return nil
}
