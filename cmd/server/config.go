package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KirkDiggler/doodle/internal/services/messaging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	port           int
	redisAddr      string
	redisPassword  string
	redisDB        int
	room           string
	wordsFile      string
	bootstrapDelay time.Duration
	messageRate    float64
	messageBurst   int
	roundTone      string
	publicURL      string
	discordToken   string
	discordChannel string
	discordGuild   string
	logLevel       string
	prettyLogs     bool
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.bootstrapDelay <= 0 {
		return fmt.Errorf("invalid bootstrap delay (must be positive): %s", c.bootstrapDelay)
	}
	if c.messageRate < 0 {
		return fmt.Errorf("invalid message rate (must not be negative): %v", c.messageRate)
	}
	if _, err := messaging.ParseTone(c.roundTone); err != nil {
		return err
	}
	if (c.discordToken == "") != (c.discordChannel == "") {
		return errors.New("both --discord-token and --discord-channel must be provided together")
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DOODLE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "doodle",
		Short:         "Turn-based draw-and-guess over a shared Redis store.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DOODLE_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DOODLE_PORT)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "localhost:6379", "redis address (env: DOODLE_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: DOODLE_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database (env: DOODLE_REDIS_DB)")
	fs.StringVar(&cfg.room, "room", "lobby", "room bridged to discord (env: DOODLE_ROOM)")
	fs.StringVar(&cfg.wordsFile, "words-file", "", "yaml word list, built-in list when empty (env: DOODLE_WORDS_FILE)")
	fs.DurationVar(&cfg.bootstrapDelay, "bootstrap-delay", time.Second, "wait before electing a first drawer (env: DOODLE_BOOTSTRAP_DELAY)")
	fs.Float64Var(&cfg.messageRate, "message-rate", 0, "inbound websocket frames per second per player, 0 for unlimited (env: DOODLE_MESSAGE_RATE)")
	fs.IntVar(&cfg.messageBurst, "message-burst", 60, "inbound websocket frame burst per player (env: DOODLE_MESSAGE_BURST)")
	fs.StringVar(&cfg.roundTone, "round-tone", "celebration", "round won announcements: celebration, funny or neutral (env: DOODLE_ROUND_TONE)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL for join links and QR codes (env: DOODLE_PUBLIC_URL)")
	fs.StringVar(&cfg.discordToken, "discord-token", "", "discord bot token (env: DOODLE_DISCORD_TOKEN)")
	fs.StringVar(&cfg.discordChannel, "discord-channel", "", "discord channel bridged to --room (env: DOODLE_DISCORD_CHANNEL)")
	fs.StringVar(&cfg.discordGuild, "discord-guild", "", "register discord commands for one guild only (env: DOODLE_DISCORD_GUILD)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level (env: DOODLE_LOG_LEVEL)")
	fs.BoolVar(&cfg.prettyLogs, "pretty-logs", false, "human readable logs (env: DOODLE_PRETTY_LOGS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("doodle v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
