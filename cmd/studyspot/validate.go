package main

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/goodtune/studyspot/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the studyspot configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "❌ Configuration validation failed: %v\n", err)
		return err
	}

	// Slack credentials are usually supplied by the environment
	if err := config.ValidateSlack(cfg.Slack); err != nil {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(out, "⚠️  Warning: %v\n", err)
	}

	// Check for unknown keys (always, not just with --dump)
	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(out, "✅ Configuration is valid: %s\n", configPath)

	// Warn about unknown keys
	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(out)
		_, _ = red.Fprintf(out, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(out, "   - %s\n", key)
		}
		fmt.Fprintln(out, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	// If dump requested, show full configuration with defaults highlighted
	if validateDump {
		_, _ = fmt.Fprintln(out, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(out, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(out, strings.Repeat("=", 80))

		dumpConfig(out, cfg, config.Defaults())
	}

	return nil
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	valid := config.KnownKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !valid[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)

	return unknown, nil
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(w io.Writer, cfg, defaultCfg *config.Config) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	field := func(name string, value, defaultValue interface{}) {
		dumpField(w, name, value, defaultValue, yellow, green)
	}

	// Slack
	_, _ = cyan.Fprintln(w, "\n[slack]")
	field("  bot_token", redactSecret(cfg.Slack.BotToken), redactSecret(defaultCfg.Slack.BotToken))
	field("  app_token", redactSecret(cfg.Slack.AppToken), redactSecret(defaultCfg.Slack.AppToken))
	field("  workers", cfg.Slack.Workers, defaultCfg.Slack.Workers)
	field("  request_timeout", cfg.Slack.RequestTimeout, defaultCfg.Slack.RequestTimeout)
	field("  debug", cfg.Slack.Debug, defaultCfg.Slack.Debug)

	// Study
	_, _ = cyan.Fprintln(w, "\n[study]")
	field("  channel_id", cfg.Study.ChannelID, defaultCfg.Study.ChannelID)
	field("  timezone", cfg.Study.Timezone, defaultCfg.Study.Timezone)
	field("  locations", cfg.Study.Locations, defaultCfg.Study.Locations)
	field("  other_location", cfg.Study.OtherLocation, defaultCfg.Study.OtherLocation)
	field("  default_location", cfg.Study.DefaultLocation, defaultCfg.Study.DefaultLocation)

	// Sweeper
	_, _ = cyan.Fprintln(w, "\n[sweeper]")
	field("  interval", cfg.Sweeper.Interval, defaultCfg.Sweeper.Interval)
	field("  retract_timeout", cfg.Sweeper.RetractTimeout, defaultCfg.Sweeper.RetractTimeout)

	// Dedupe
	_, _ = cyan.Fprintln(w, "\n[dedupe]")
	field("  backend", cfg.Dedupe.Backend, defaultCfg.Dedupe.Backend)
	field("  size", cfg.Dedupe.Size, defaultCfg.Dedupe.Size)
	field("  ttl", cfg.Dedupe.TTL, defaultCfg.Dedupe.TTL)
	_, _ = cyan.Fprintln(w, "  [dedupe.redis]")
	field("    host", cfg.Dedupe.Redis.Host, defaultCfg.Dedupe.Redis.Host)
	field("    port", cfg.Dedupe.Redis.Port, defaultCfg.Dedupe.Redis.Port)
	field("    password", redactSecret(cfg.Dedupe.Redis.Password), redactSecret(defaultCfg.Dedupe.Redis.Password))
	field("    db", cfg.Dedupe.Redis.DB, defaultCfg.Dedupe.Redis.DB)
	field("    pool_size", cfg.Dedupe.Redis.PoolSize, defaultCfg.Dedupe.Redis.PoolSize)
	field("    min_idle_conns", cfg.Dedupe.Redis.MinIdleConns, defaultCfg.Dedupe.Redis.MinIdleConns)
	field("    dial_timeout", cfg.Dedupe.Redis.DialTimeout, defaultCfg.Dedupe.Redis.DialTimeout)
	field("    read_timeout", cfg.Dedupe.Redis.ReadTimeout, defaultCfg.Dedupe.Redis.ReadTimeout)
	field("    write_timeout", cfg.Dedupe.Redis.WriteTimeout, defaultCfg.Dedupe.Redis.WriteTimeout)
	field("    prefix", cfg.Dedupe.Redis.Prefix, defaultCfg.Dedupe.Redis.Prefix)

	// Server
	_, _ = cyan.Fprintln(w, "\n[server]")
	field("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress)
	field("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort)

	// Logging
	_, _ = cyan.Fprintln(w, "\n[logging]")
	field("  level", cfg.Logging.Level, defaultCfg.Logging.Level)
	field("  format", cfg.Logging.Format, defaultCfg.Logging.Format)

	_, _ = fmt.Fprintln(w, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(w io.Writer, name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	if reflect.DeepEqual(value, defaultValue) {
		_, _ = defaultColor.Fprintf(w, "%s = %v\n", name, value)
	} else {
		_, _ = modifiedColor.Fprintf(w, "%s = %v  (modified from default: %v)\n", name, value, defaultValue)
	}
}

// redactSecret redacts a token or password if not empty
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	return "***REDACTED***"
}
