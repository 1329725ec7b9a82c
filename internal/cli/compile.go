package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jsonapi/internal/config"
	"github.com/roach88/jsonapi/internal/document"
	"github.com/roach88/jsonapi/internal/queryir"
	"github.com/roach88/jsonapi/internal/queryparams"
	"github.com/roach88/jsonapi/internal/querysql"
)

// CompileResult is the data of a compile run.
type CompileResult struct {
	Type    string `json:"type"`
	Dialect string `json:"dialect"`
	SQL     string `json:"sql"`
	Args    []any  `json:"args"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <type> [query]",
		Short: "Print the SQL for a collection request",
		Long: `Print the primary SQL statement for a collection request.

The query is the raw query string of the request, e.g.

  jsonapi compile articles 'filter[author.name]=Jane Doe&sort=-id&page[limit]=5'

No database connection is made; --datastore-engine selects the dialect.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rawQuery string
			if len(args) == 2 {
				rawQuery = args[1]
			}
			return runCompile(rootOpts, args[0], rawQuery, cmd)
		},
	}

	addDatastoreFlags(cmd.Flags())
	cmd.Flags().Int("page-limit", config.DefaultPageLimit, "page size when page[limit] is absent")

	return cmd
}

func runCompile(opts *RootOptions, typ, rawQuery string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	models, err := loadModels(cfg.Schema)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSchema, "failed to load schema", err)
	}
	if _, ok := models.Resource(typ); !ok {
		return formatter.Fail(ExitFailure, ErrCodeUnknownType,
			fmt.Sprintf("resource type %q not found", typ), nil)
	}

	dialect, err := querysql.DialectFor(cfg.Datastore.Engine)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid datastore engine", err)
	}

	req := queryparams.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if req.Filter != nil {
		for _, w := range queryir.Validate(req.Filter).Warnings {
			formatter.VerboseLog("Filter degraded: %s", w)
		}
	}

	q := &queryir.ReadQuery{Type: typ, Request: req}
	if pager := document.NewPaginator(req, cfg.PageLimit); pager.Enabled() {
		q.Offset, q.Limit, q.WithTotal = pager.Offset, pager.Limit, true
	}

	sql, args, err := querysql.NewCompiler(models, dialect).Compile(q)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to compile query", err)
	}
	if args == nil {
		args = []any{}
	}

	text := []string{sql}
	if len(args) > 0 {
		text = append(text, fmt.Sprintf("-- args: %v", args))
	}
	return formatter.Success(CompileResult{
		Type:    typ,
		Dialect: dialect.Name,
		SQL:     sql,
		Args:    args,
	}, text...)
}
