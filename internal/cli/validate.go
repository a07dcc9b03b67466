package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/clockwork/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Classes  int                        `json:"classes"`
	Machines int                        `json:"machines"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate class and machine declarations",
		Long: `Validate the CUE classes and machines in a directory without running them.

Reports unknown classes and states, parameter count mismatches and
duplicate names. Dependency cycles between machines are reported as
warnings; they are legal but cost extra evaluation passes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loadResult, err := LoadSpecs(specsDir)
	if err != nil {
		return failLoad(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	result := validateProgram(loadResult.Program, formatter)
	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

func validateProgram(prog *compiler.Program, formatter *OutputFormatter) ValidationResult {
	for _, c := range prog.Classes {
		formatter.VerboseLog("Validating class: %s", c.Name)
	}
	errs := compiler.Validate(prog)
	return ValidationResult{
		Valid:    len(errs) == 0,
		Classes:  len(prog.Classes),
		Machines: len(prog.Instances),
		Errors:   errs,
		Warnings: compiler.AnalyzeCycles(prog),
	}
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d classes, %d machines)\n", result.Classes, result.Machines)
	printWarnings(formatter, result.Warnings)
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.JSON() {
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    result.Errors[0].Code,
				Message: result.Errors[0].Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range result.Errors {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	printWarnings(formatter, result.Warnings)

	return exitErr
}

func printWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "warning: %s\n", w.Message)
	}
}

// ValidateSpecsDir validates all specs in a directory.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, error) {
	loadResult, err := LoadSpecs(specsDir)
	if err != nil {
		return nil, err
	}
	return compiler.Validate(loadResult.Program), nil
}

// loadValidProgram loads specs and fails on any validation error.
func loadValidProgram(specsDir string) (*compiler.Program, error) {
	loadResult, err := LoadSpecs(specsDir)
	if err != nil {
		return nil, err
	}
	if errs := compiler.Validate(loadResult.Program); len(errs) > 0 {
		issues := make([]error, len(errs))
		for i := range errs {
			issues[i] = errs[i]
		}
		return nil, &LoadError{Code: errs[0].Code, Message: errors.Join(issues...).Error()}
	}
	return loadResult.Program, nil
}
