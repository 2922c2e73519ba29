package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"dirwatch/internal/cli"
	"dirwatch/internal/config"
	"dirwatch/internal/fsutil"
)

// Options is the parsed command line.
type Options struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Listen      string
	Token       string
	Origins     []string
	Create      bool
	Mode        string
	List        bool
	JSON        bool
	MaxWatches  int
	Dirs        []string
	ShowVersion bool

	set map[string]bool
}

func parseArgs(args []string, errOut io.Writer) (Options, error) {
	fs := flag.NewFlagSet("dirwatch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configFlag := fs.String("config", "", "Config file (YAML)")
	logLevelFlag := fs.String("log-level", "", "Log level: debug, info, warning, error (env: DIRWATCH_LOG_LEVEL)")
	logFormatFlag := fs.String("log-format", "", "Log format: text or json (env: DIRWATCH_LOG_FORMAT)")
	listenFlag := fs.String("listen", "", "Serve the HTTP API on ADDR (env: DIRWATCH_LISTEN)")
	tokenFlag := fs.String("token", "", "API auth token (env: DIRWATCH_TOKEN)")
	var origins cli.StringList
	fs.Var(&origins, "origin", "Allowed WebSocket origin (repeatable)")
	createFlag := fs.Bool("create", false, "Create missing directories, including parents")
	modeFlag := fs.String("mode", "", "Permission bits for --create (default: 0755)")
	listFlag := fs.Bool("list", false, "Print directory entries and exit")
	jsonFlag := fs.Bool("json", false, "Print changes as JSON lines")
	maxWatchesFlag := fs.Int("max-watches", 0, "Maximum watched directories (0: unlimited)")
	helpVersion := cli.AddHelpVersionFlags(fs, "Show this help message", "Print version and exit")
	fs.Usage = func() {
		printHelp(fs.Output())
	}

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}

	if helpVersion.Help {
		fs.Usage()
		return Options{}, flag.ErrHelp
	}

	if helpVersion.Version {
		return Options{ShowVersion: true}, nil
	}

	if *maxWatchesFlag < 0 {
		return Options{}, usageError(fs, errors.New("--max-watches must not be negative"))
	}
	if _, err := fsutil.ParseMode(*modeFlag); err != nil {
		return Options{}, usageError(fs, fmt.Errorf("--mode: %w", err))
	}

	dirs := make([]string, 0, fs.NArg())
	for _, arg := range fs.Args() {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			dirs = append(dirs, trimmed)
		}
	}
	if len(dirs) == 0 && strings.TrimSpace(*configFlag) == "" {
		return Options{}, usageError(fs, errors.New("at least one directory is required"))
	}

	set := make(map[string]bool)
	for _, name := range []string{"log-level", "log-format", "listen", "token", "max-watches"} {
		set[name] = cli.FlagWasSet(fs, name)
	}

	return Options{
		ConfigPath: strings.TrimSpace(*configFlag),
		LogLevel:   strings.TrimSpace(*logLevelFlag),
		LogFormat:  strings.TrimSpace(*logFormatFlag),
		Listen:     strings.TrimSpace(*listenFlag),
		Token:      strings.TrimSpace(*tokenFlag),
		Origins:    origins,
		Create:     *createFlag,
		Mode:       strings.TrimSpace(*modeFlag),
		List:       *listFlag,
		JSON:       *jsonFlag,
		MaxWatches: *maxWatchesFlag,
		Dirs:       dirs,
		set:        set,
	}, nil
}

func usageError(fs *flag.FlagSet, err error) error {
	fmt.Fprintf(fs.Output(), "dirwatch: %v\n", err)
	fs.Usage()
	return err
}

// resolveConfig layers the config file, DIRWATCH_* variables and explicit
// flags, in that order.
func resolveConfig(options Options, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if options.ConfigPath != "" {
		loaded, err := config.ReadFile(options.ConfigPath, true)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg = cfg.ApplyEnv(lookup)

	if options.set["log-level"] {
		cfg.LogLevel = options.LogLevel
	}
	if options.set["log-format"] {
		cfg.LogFormat = options.LogFormat
	}
	if options.set["listen"] {
		cfg.Listen = options.Listen
	}
	if options.set["token"] {
		cfg.Token = options.Token
	}
	if options.set["max-watches"] {
		cfg.MaxWatches = options.MaxWatches
	}
	cfg.AllowedOrigins = append(cfg.AllowedOrigins, options.Origins...)
	for _, dir := range options.Dirs {
		cfg.Directories = append(cfg.Directories, config.DirectoryConfig{
			Path:   dir,
			Create: options.Create,
			Mode:   options.Mode,
		})
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if len(cfg.Directories) == 0 {
		return cfg, errors.New("no directories configured")
	}
	return cfg, nil
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, "Usage: dirwatch [options] <dir>...")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Watch directories and print entries as they are created, modified or deleted")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	cli.WriteOption(out, "--config FILE", "Config file (YAML)")
	cli.WriteOption(out, "--log-level LEVEL", "debug, info, warning or error (env: DIRWATCH_LOG_LEVEL)")
	cli.WriteOption(out, "--log-format FORMAT", "text or json (env: DIRWATCH_LOG_FORMAT)")
	cli.WriteOption(out, "--listen ADDR", "Serve the HTTP API, e.g. :8080 (env: DIRWATCH_LISTEN)")
	cli.WriteOption(out, "--token TOKEN", "API auth token (env: DIRWATCH_TOKEN)")
	cli.WriteOption(out, "--origin ORIGIN", "Allowed WebSocket origin (repeatable)")
	cli.WriteOption(out, "--create", "Create missing directories, including parents")
	cli.WriteOption(out, "--mode MODE", "Permission bits for --create (default: 0755)")
	cli.WriteOption(out, "--list", "Print directory entries and exit")
	cli.WriteOption(out, "--json", "Print changes as JSON lines")
	cli.WriteOption(out, "--max-watches N", "Maximum watched directories (default: unlimited)")
	cli.WriteOption(out, "--help", "Show this help message")
	cli.WriteOption(out, "--version", "Print version and exit")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  dirwatch /srv/incoming")
	fmt.Fprintln(out, "  dirwatch --create --mode 0750 --json /srv/spool")
	fmt.Fprintln(out, "  dirwatch --config dirwatch.yaml --listen :8080")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Exit codes:")
	fmt.Fprintln(out, "  0  Success")
	fmt.Fprintln(out, "  1  Usage error")
	fmt.Fprintln(out, "  2  Directory error")
	fmt.Fprintln(out, "  3  Watch error")
}
