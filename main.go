// Package main provides the entry point for the idoll CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/idoll/idoll/ui"
	"github.com/idoll/idoll/voice"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	plain      bool
	mute       bool
	debug      bool
	mouse      bool
	width      uint

	rootCmd = &cobra.Command{
		Use:   "idoll",
		Short: "Talk to your idoll from the terminal",
		Long: paragraph(
			fmt.Sprintf("\nChat with an idoll server and %s, streamed straight to your speakers.", keyword("hear every reply")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	plain = viper.GetBool("plain")
	debug = viper.GetBool("debug")
	mute = viper.GetBool("voice.mute")

	if debug {
		log.SetLevel(log.DebugLevel)
	}

	if configFile != "" && cmd.Flags().Changed("config") {
		p, err := homedir.Expand(configFile)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		configFile = p
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal {
		// pipes and dumb terminals get plain text
		lipgloss.SetColorProfile(termenv.Ascii)
		plain = true
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") && width == 0 && isTerminal && plain {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err == nil {
			width = uint(w) //nolint:gosec
		}
		if width > 120 {
			width = 120
		}
	}
	return nil
}

func execute(*cobra.Command, []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	watchConfig(a)

	deps := ui.Deps{
		Conn:      a.client,
		Session:   a.session,
		Summaries: a.summaries,
		Voice:     a.voice,
		Logger:    a.logger,
	}

	if plain {
		return ui.RunPlain(ctx, deps, ui.PlainOptions{
			Width:       int(width), //nolint:gosec
			HistoryPath: historyPath(),
		})
	}
	return runTUI(deps)
}

func runTUI(deps ui.Deps) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	cfg.Server = viper.GetString("server")
	cfg.UserID = viper.GetString("user")
	cfg.EnableMouse = mouse
	cfg.MaxWidth = width

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// watchConfig applies volume changes made to the config file while the
// client runs.
func watchConfig(a *app) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := voice.LoadConfigFromViper()
		if err != nil {
			a.logger.Warn("ignoring config change", "path", e.Name, "err", err)
			return
		}
		if err := a.voice.SetVolume(cfg.Volume); err != nil {
			a.logger.Warn("could not apply volume", "err", err)
			return
		}
		a.logger.Info("config reloaded", "volume", cfg.Volume)
	})
	viper.WatchConfig()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	// a .env next to the binary's working dir may carry IDOLL_* settings
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Could not load .env", "err", err)
	}

	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().String("server", "", "server origin, e.g. https://idoll.example.com")
	rootCmd.PersistentFlags().String("ws-url", "", "WebSocket URL, overrides --server")
	rootCmd.PersistentFlags().String("proxy", "", "SOCKS5 proxy (host:port)")
	rootCmd.PersistentFlags().String("user", "", "user id sent to the server")
	rootCmd.PersistentFlags().BoolVar(&mute, "mute", false, "do not play audio")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging")
	rootCmd.Flags().BoolVar(&plain, "plain", false, "line mode instead of the full screen interface")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to use the window)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("ws_url", rootCmd.PersistentFlags().Lookup("ws-url"))
	_ = viper.BindPFlag("proxy", rootCmd.PersistentFlags().Lookup("proxy"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
	_ = viper.BindPFlag("voice.mute", rootCmd.PersistentFlags().Lookup("mute"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("plain", rootCmd.Flags().Lookup("plain"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	_ = viper.BindEnv("ws_url", "IDOLL_WS_URL", "IDOLL_WS")

	viper.SetDefault("server", "http://localhost")
	viper.SetDefault("width", 0)
	voice.SetDefaults()

	rootCmd.AddCommand(configCmd, manCmd, sayCmd, listenCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "idoll")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "idoll")}, dirs...)
	}

	if c := os.Getenv("IDOLL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("idoll")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("idoll")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "idoll.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
