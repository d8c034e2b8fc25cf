package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/CaliLuke/go-docmap/connect"
	"github.com/CaliLuke/go-docmap/odm"
	"github.com/CaliLuke/go-docmap/schemadef"
)

// app carries the settings resolved before any subcommand runs.
type app struct {
	configPath string
	cfg        connect.Config
	logger     *zap.SugaredLogger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop().Sugar()}

	root := &cobra.Command{
		Use:   "odmctl",
		Short: "odmctl - schema and collection tooling for docmap",
		Long: `odmctl works with docmap schema files and the databases behind them.

The database is chosen by URL: nedb://memory, sqlite://FILE, bolt://FILE or
mongodb://HOST/DB. Settings come from flags, DOCMAP_* environment variables
and an optional docmap.yaml.

Examples:
  # Check a schema and list its types
  odmctl check models.odm

  # Generate Go declarations for a schema
  odmctl gen models.odm -o models_gen.go --package models

  # Show wallets with a balance over 100
  odmctl --url sqlite://shop.db find wallets --where '{"balance": {"$gt": 100}}'`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (default ./docmap.yaml)")
	pf.String("url", "", "Database URL (env DOCMAP_URL)")
	pf.String("database", "", "MongoDB database name (env DOCMAP_DATABASE)")
	pf.Bool("debug", false, "Enable debug logging")

	root.AddCommand(
		newCheckCmd(),
		newGenCmd(),
		newValidateCmd(),
		newFindCmd(a),
		newCountCmd(a),
		newIndexCmd(a),
		newDropCmd(a),
	)
	return root
}

// load merges flags over the environment and config file.
func (a *app) load(cmd *cobra.Command) error {
	v, err := connect.NewViper(a.configPath)
	if err != nil {
		return err
	}
	for _, name := range []string{"url", "database", "debug"} {
		if err := v.BindPFlag(name, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	cfg, err := connect.FromViper(v)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.Debug {
		logger, err := connect.NewLogger(true)
		if err != nil {
			return err
		}
		a.logger = logger
	}
	return nil
}

func (a *app) open(ctx context.Context) (*odm.Store, error) {
	a.logger.Debugf("odmctl: opening %s", a.cfg.URL)
	return connect.Open(ctx, a.cfg, a.logger)
}

// loadSchema parses and registers the types declared in path.
func loadSchema(path string) (map[string]*odm.DocumentType, error) {
	schema, err := schemadef.ParseSchemaFile(path)
	if err != nil {
		return nil, err
	}
	return schemadef.Build(schema)
}
