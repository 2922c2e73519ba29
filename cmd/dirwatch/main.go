package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"dirwatch/internal/api"
	"dirwatch/internal/config"
	"dirwatch/internal/directory"
	"dirwatch/internal/logging"
	"dirwatch/internal/metrics"
	"dirwatch/internal/version"
	"dirwatch/internal/watcher"
)

func main() {
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	code := run(os.Args[1:], os.Stdout, os.Stderr, signalCh)
	signal.Stop(signalCh)
	os.Exit(code)
}

func run(args []string, out io.Writer, errOut io.Writer, signalCh <-chan os.Signal) int {
	options, err := parseArgs(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitCodeSuccess
		}
		return exitCodeUsage
	}
	if options.ShowVersion {
		fmt.Fprintln(out, version.Banner("dirwatch"))
		return exitCodeSuccess
	}

	cfg, err := resolveConfig(options, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(errOut, "dirwatch: %v\n", err)
		return exitCodeUsage
	}

	logger := logging.NewLoggerWithOptions(logging.Options{
		MinLevel: cfg.Level(),
		Output:   errOut,
		Format:   cfg.Format(),
	}).With(map[string]string{
		logging.FieldCategory: "cli",
	})

	if options.List {
		return listDirectories(cfg, options.JSON, out, errOut)
	}
	return watchDirectories(cfg, options.JSON, logger, out, errOut, signalCh)
}

func watchDirectories(cfg config.Config, jsonOutput bool, logger *logging.Logger, out, errOut io.Writer, signalCh <-chan os.Signal) int {
	registry := metrics.New()
	service, err := watcher.NewWithOptions(watcher.Options{
		Logger:     logger,
		Metrics:    registry,
		MaxWatches: cfg.MaxWatches,
	})
	if err != nil {
		fmt.Fprintf(errOut, "dirwatch: %v\n", err)
		return exitCodeWatch
	}
	defer func() {
		if err := service.Close(); err != nil {
			logger.Warn("watch service close failed", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := forwardShutdownSignals(logger, cancel, signalCh)
	defer stopSignals()

	dirs, code := openDirectories(cfg, errOut, directory.WithService(service))
	if code != exitCodeSuccess {
		return code
	}

	printer := newChangePrinter(out, jsonOutput)
	listener := watcher.NewListener(printer.Print)
	for _, dir := range dirs {
		if err := dir.AddListener(listener); err != nil {
			fmt.Fprintf(errOut, "dirwatch: %v\n", err)
			return exitCodeWatch
		}
		defer dir.RemoveListener(listener)
		logger.Info("watching directory", map[string]string{
			"path": dir.Path(),
		})
	}

	if cfg.Listen != "" {
		server := api.NewServer(cfg.Listen, api.RouteOptions{
			Service:        service,
			Logger:         logger,
			Metrics:        registry,
			AuthToken:      cfg.Token,
			AllowedOrigins: cfg.AllowedOrigins,
		})
		if err := server.Open(); err != nil {
			fmt.Fprintf(errOut, "dirwatch: %v\n", err)
			return exitCodeWatch
		}
		defer func() {
			if err := server.Close(); err != nil {
				logger.Warn("http server close failed", map[string]string{
					"error": err.Error(),
				})
			}
		}()
	}

	select {
	case <-ctx.Done():
		return exitCodeSuccess
	case <-service.Done():
		if err := service.Err(); err != nil {
			logger.Error("watch service stopped", map[string]string{
				"error": err.Error(),
			})
			return exitCodeWatch
		}
		return exitCodeSuccess
	}
}

// openDirectories opens every configured entry once per resolved path, so a
// directory named twice (or through a symlink) is watched and listed once.
func openDirectories(cfg config.Config, errOut io.Writer, extra ...directory.Option) ([]*directory.Directory, int) {
	dirs := make([]*directory.Directory, 0, len(cfg.Directories))
	seen := make(map[string]bool, len(cfg.Directories))
	for _, entry := range cfg.Directories {
		var (
			dir *directory.Directory
			err error
		)
		opts := append([]directory.Option{}, extra...)
		if entry.Create {
			mode, modeErr := entry.FileMode()
			if modeErr != nil {
				fmt.Fprintf(errOut, "dirwatch: %s: %v\n", entry.Path, modeErr)
				return nil, exitCodeUsage
			}
			if mode != 0 {
				opts = append(opts, directory.WithPerm(mode))
			}
			opts = append(opts, directory.WithParents(true))
			dir, err = directory.Create(entry.Path, opts...)
			if errors.Is(err, directory.ErrAlreadyExists) {
				dir, err = directory.Open(entry.Path, opts...)
			}
		} else {
			dir, err = directory.Open(entry.Path, opts...)
		}
		if err != nil {
			fmt.Fprintf(errOut, "dirwatch: %v\n", err)
			return nil, exitCodeDirectory
		}
		if seen[dir.Path()] {
			continue
		}
		seen[dir.Path()] = true
		dirs = append(dirs, dir)
	}
	return dirs, exitCodeSuccess
}

type listing struct {
	Path     string   `json:"path"`
	Children []string `json:"children"`
}

func listDirectories(cfg config.Config, jsonOutput bool, out, errOut io.Writer) int {
	dirs, code := openDirectories(cfg, errOut)
	if code != exitCodeSuccess {
		return code
	}
	encoder := json.NewEncoder(out)
	for _, dir := range dirs {
		children, err := dir.Children()
		if err != nil {
			fmt.Fprintf(errOut, "dirwatch: %v\n", err)
			return exitCodeDirectory
		}
		if jsonOutput {
			if children == nil {
				children = []string{}
			}
			if err := encoder.Encode(listing{Path: dir.Path(), Children: children}); err != nil {
				fmt.Fprintf(errOut, "dirwatch: %v\n", err)
				return exitCodeDirectory
			}
			continue
		}
		for _, child := range children {
			fmt.Fprintln(out, child)
		}
	}
	return exitCodeSuccess
}
