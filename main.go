// Copyright (c) 2026 The IceCube Collaboration and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// The lta command runs one pipeline component per process. Each component
// claims work from the LTA DB, advances it one status, and goes back for
// more; operators run as many replicas of each component as a site needs.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"github.com/WIPACrepo/lta/auth"
	"github.com/WIPACrepo/lta/components"
	"github.com/WIPACrepo/lta/config"
	"github.com/WIPACrepo/lta/filecatalog"
	"github.com/WIPACrepo/lta/journal"
	"github.com/WIPACrepo/lta/ltadb"
	"github.com/WIPACrepo/lta/metrics"
	"github.com/WIPACrepo/lta/transfer"
	"github.com/WIPACrepo/lta/transfer/globus"
	"github.com/WIPACrepo/lta/transfer/move"
	"github.com/WIPACrepo/lta/worker"
)

// configFile is the optional YAML configuration; without it, the process
// environment supplies every key.
var configFile string

func main() {
	root := &cobra.Command{
		Use:           "lta",
		Short:         "IceCube Long Term Archive pipeline components",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (default: environment)")

	for _, kind := range []struct{ name, short string }{
		{"picker", "expand TransferRequests into size-balanced Bundles"},
		{"bundler", "materialize specified Bundles as ZIP64 containers"},
		{"replicator", "ship created Bundles to the destination site"},
		{"site-move-verifier", "verify shipped Bundles against their creation checksums"},
		{"cataloger", "register archived Bundles and their members in the File Catalog"},
		{"deleter", "remove warehouse files whose Bundles are archived"},
		{"locator", "map restore requests onto existing archive Bundles"},
	} {
		componentType := kind.name
		root.AddCommand(&cobra.Command{
			Use:   componentType,
			Short: kind.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runComponent(strings.ReplaceAll(componentType, "-", "_"))
			},
		})
	}

	err := root.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "lta: %s\n", err.Error())
		os.Exit(1)
	}
}

// runComponent wires up one component and runs its work loop until a
// signal arrives or the loop's exit policy fires.
func runComponent(componentType string) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}
	conf.ComponentType = componentType
	configureLogging(conf.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	db, fc, err := buildClients(ctx, conf)
	if err != nil {
		return err
	}

	var journ *journal.Journal
	if conf.JournalPath != "" {
		journ, err = journal.Open(conf.JournalPath)
		if err != nil {
			return err
		}
		defer journ.Close()
	}

	component, err := buildComponent(componentType, conf, db, fc, journ)
	if err != nil {
		return err
	}

	if conf.PrometheusMetricsPort > 0 {
		go func() {
			err := metrics.Serve(ctx, conf.PrometheusMetricsPort)
			if err != nil {
				slog.Error(fmt.Sprintf("metrics endpoint failed: %s", err.Error()))
			}
		}()
	}

	slog.Info(fmt.Sprintf("starting %s (%s -> %s)", component.Name(), conf.SourceSite, conf.DestSite))
	return worker.New(component, conf, db).Run(ctx)
}

// loadConfig reads the YAML file when --config was given, the process
// environment otherwise.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return config.FromEnvironment()
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, err
	}
	return config.Read(data)
}

// configureLogging installs a JSON structured logger at the configured
// level.
func configureLogging(level string) {
	logLevel := new(slog.LevelVar)
	switch strings.ToLower(level) {
	case "debug":
		logLevel.Set(slog.LevelDebug)
	case "warn", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error":
		logLevel.Set(slog.LevelError)
	default:
		logLevel.Set(slog.LevelInfo)
	}
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

// buildClients constructs the LTA DB client and the File Catalog client,
// each with its own token source when an auth provider is configured.
func buildClients(ctx context.Context, conf *config.Config) (*ltadb.Client, *filecatalog.Client, error) {
	timeout := time.Duration(conf.WorkTimeoutSeconds) * time.Second

	var tokens oauth2.TokenSource
	if conf.LtaAuthOpenIDURL != "" {
		var err error
		tokens, err = auth.NewTokenSource(ctx, conf.LtaAuthOpenIDURL, conf.ClientID, conf.ClientSecret)
		if err != nil {
			return nil, nil, err
		}
	}
	db := ltadb.NewClient(conf.LtaRestURL, tokens, timeout, conf.WorkRetries)

	// the File Catalog accepts the same provider; sites may issue it a
	// separate client
	fcTokens := tokens
	if conf.FileCatalogClientID != "" {
		var err error
		fcTokens, err = auth.NewTokenSource(ctx, conf.LtaAuthOpenIDURL,
			conf.FileCatalogClientID, conf.FileCatalogClientSecret)
		if err != nil {
			return nil, nil, err
		}
	}
	fc := filecatalog.NewClient(conf.FileCatalogRestURL, fcTokens, timeout)
	return db, fc, nil
}

// buildComponent constructs the requested component, including a transfer
// service for the ones that move bytes between sites.
func buildComponent(componentType string, conf *config.Config, db *ltadb.Client,
	fc *filecatalog.Client, journ *journal.Journal) (worker.Component, error) {

	switch componentType {
	case "picker":
		return components.NewPicker(conf, db, fc, journ)
	case "bundler":
		return components.NewBundler(conf, db, fc, journ)
	case "cataloger":
		return components.NewCataloger(conf, db, fc, journ)
	case "deleter":
		return components.NewDeleter(conf, db, fc, journ)
	case "locator":
		return components.NewLocator(conf, db, fc, journ)
	case "replicator", "site_move_verifier":
		xfer, err := buildTransfer(conf)
		if err != nil {
			return nil, err
		}
		if componentType == "replicator" {
			return components.NewReplicator(conf, db, xfer, journ)
		}
		return components.NewSiteMoveVerifier(conf, db, xfer, journ)
	default:
		return nil, fmt.Errorf("unknown component type: %s", componentType)
	}
}

func buildTransfer(conf *config.Config) (transfer.Service, error) {
	for name, factory := range map[string]transfer.Factory{
		"globus": globus.New,
		"move":   move.New,
	} {
		err := transfer.RegisterProvider(name, factory)
		if err != nil {
			return nil, err
		}
	}
	return transfer.New(conf.Transfer)
}
