package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/config"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Open bool
}

// MemberSummary describes one configured member.
type MemberSummary struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Ref     string `json:"ref"`
	Default bool   `json:"default,omitempty"`
}

// ValidateResult is the JSON payload of the validate command.
type ValidateResult struct {
	Valid     bool            `json:"valid"`
	BatchSize int             `json:"batch_size"`
	Members   []MemberSummary `json:"members"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the federation configuration",
		Long: `Load the CUE configuration named by --config, check it against the
schema and list its members. Errors report the file position of the
offending field.

With --open, every member is also opened (local stores are created)
and closed again.

Examples:
  fedq validate
  fedq validate --config ./federation --open`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Open, "open", false, "open every member after validating")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return reportError(formatter, ErrCodeUsage, asExitError(err))
	}

	if opts.Open {
		reg, err := cfg.Registry(config.BuildOptions{Logger: newLogger(opts.RootOptions, cmd.ErrOrStderr())})
		if err != nil {
			return reportError(formatter, ErrCodeUsage, WrapExitError(ExitCommandError, "failed to open members", err))
		}
		if err := reg.Close(); err != nil {
			return reportError(formatter, ErrCodeUsage, WrapExitError(ExitFailure, "failed to close members", err))
		}
	}

	result := summarize(cfg)
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ %s: %d members\n", opts.Config, len(result.Members))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range result.Members {
		mark := ""
		if m.Default {
			mark = "(default)"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", m.ID, m.Kind, m.Ref, mark)
	}
	return tw.Flush()
}

func summarize(cfg *config.Config) ValidateResult {
	def := cfg.Default
	if def == "" && len(cfg.Members) > 0 {
		def = cfg.Members[0].ID
	}
	result := ValidateResult{Valid: true, BatchSize: cfg.BatchSize, Members: []MemberSummary{}}
	for _, m := range cfg.Members {
		result.Members = append(result.Members, MemberSummary{
			ID:      m.ID,
			Kind:    string(m.Kind),
			Ref:     m.Ref,
			Default: m.ID == def,
		})
	}
	return result
}
