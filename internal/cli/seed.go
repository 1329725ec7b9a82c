package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/jsonapi/internal/blog"
	"github.com/roach88/jsonapi/internal/store"
)

// SeedResult is the data of a seed run.
type SeedResult struct {
	Engine    string   `json:"engine"`
	URI       string   `json:"uri"`
	Resources []string `json:"resources"`
	Data      bool     `json:"data"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var schemaOnly bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create and populate the demo blog database",
		Long: `Create the tables of the built-in blog model (users, articles,
comments, photos) and insert the demo rows.

MySQL DSNs need multiStatements=true.`,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, schemaOnly, cmd)
		},
	}

	addDatastoreFlags(cmd.Flags())
	cmd.Flags().BoolVar(&schemaOnly, "schema-only", false, "create the tables without inserting rows")

	return cmd
}

func runSeed(opts *RootOptions, schemaOnly bool, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	if cfg.Schema != "" {
		return formatter.Fail(ExitCommandError, ErrCodeSchema,
			"seed only supports the built-in blog model; unset --schema", nil)
	}

	models, err := blog.Registry()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSchema, "failed to load schema", err)
	}

	st, err := store.Open(store.Options{
		Engine: cfg.Datastore.Engine,
		DSN:    cfg.Datastore.URI,
	}, models)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatastore, "failed to open datastore", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	formatter.VerboseLog("Creating tables in %s", cfg.Datastore.URI)
	if err := st.ExecScript(ctx, blog.SchemaSQL); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatastore, "failed to create tables", err)
	}
	if !schemaOnly {
		formatter.VerboseLog("Inserting demo rows")
		if err := st.ExecScript(ctx, blog.SeedSQL); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatastore, "failed to insert demo rows", err)
		}
	}

	msg := "Seeded blog database at " + cfg.Datastore.URI
	if schemaOnly {
		msg = "Created blog tables at " + cfg.Datastore.URI
	}
	return formatter.Success(SeedResult{
		Engine:    cfg.Datastore.Engine,
		URI:       cfg.Datastore.URI,
		Resources: models.Types(),
		Data:      !schemaOnly,
	}, msg)
}
