package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/jsonapi/internal/model"
)

// ValidationResult is the data of a successful validate run.
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Resources []string `json:"resources"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-file>",
		Short: "Validate a resource schema",
		Long: `Validate a YAML or CUE resource schema.

Resource types must be unique. Relationships must target a declared
type and their keys must name real columns.`,
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	formatter.VerboseLog("Loading schema %s", path)

	models, err := model.LoadFile(path)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeSchema, "invalid schema", err)
	}

	types := models.Types()
	return formatter.Success(
		ValidationResult{Valid: true, Resources: types},
		fmt.Sprintf("Schema valid: %d resource type(s)", len(types)),
		"  "+strings.Join(types, ", "),
	)
}
