package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/config"
	"github.com/roach88/jsonapi/internal/model"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the jsonapi CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "jsonapi",
		Short: "JSON:API server over a relational database",
		Long: `Serve JSON:API resources from a relational database.

Query parameters (filter, sort, fields, include, page) are compiled into a
single SQL statement plus one batched query per to-many include level.
Settings come from flags, JSONAPI_* environment variables or config.yaml.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default: config.yaml in /etc/jsonapi, $HOME/.jsonapi or .)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// configFlags maps command-line flags onto config keys.
var configFlags = map[string]string{
	"schema":            "schema",
	"page-limit":        "page_limit",
	"datastore-engine":  "datastore.engine",
	"datastore-uri":     "datastore.uri",
	"http-addr":         "http.addr",
	"base-url":          "http.base_url",
	"cors-origins":      "http.cors_allowed_origins",
	"log-format":        "log.format",
	"log-level":         "log.level",
	"shutdown-timeout":  "http.shutdown_timeout",
	"max-open-conns":    "datastore.max_open_conns",
	"conn-max-lifetime": "datastore.conn_max_lifetime",
}

func addDatastoreFlags(flags *pflag.FlagSet) {
	def := config.DefaultConfig()
	flags.String("schema", def.Schema, "resource schema file (.yaml or .cue); the built-in blog model when empty")
	flags.String("datastore-engine", def.Datastore.Engine, "database engine (sqlite|postgres|mysql)")
	flags.String("datastore-uri", def.Datastore.URI, "database DSN or sqlite file path")
}

// loadConfig reads the configuration, letting the flags the command
// defines override environment and file values.
func loadConfig(opts *RootOptions, cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper()
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	}
	bindFlags(v, cmd.Flags())

	cfg, err := config.Read(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range configFlags {
		if f := flags.Lookup(name); f != nil {
			config.MustBindPFlag(v, key, f)
		}
	}
}

// loadModels returns the schema at path, or the blog model when path is empty.
func loadModels(path string) (*model.Registry, error) {
	if path == "" {
		return blog.Registry()
	}
	return model.LoadFile(path)
}
