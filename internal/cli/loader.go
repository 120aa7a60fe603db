package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fedq/internal/config"
	"github.com/roach88/fedq/internal/federation"
	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/sparql"
)

// CLI error codes. Configuration errors reuse the codes of
// config.LoadError.
const (
	ErrCodeUsage  = "E_USAGE"
	ErrCodeSyntax = "E_SYNTAX"
	ErrCodeQuery  = "E_QUERY"
)

// session is a federation built from the command's configuration.
type session struct {
	cfg    *config.Config
	fed    *federation.Federation
	logger *slog.Logger
}

// openSession loads the configuration named by opts, opens its members
// and builds the federation with fedOpts. The session must be closed.
func openSession(opts *RootOptions, cmd *cobra.Command, fedOpts ...federation.Option) (*session, error) {
	logger := newLogger(opts, cmd.ErrOrStderr())

	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	members, err := cfg.Registry(config.BuildOptions{Logger: logger})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open members", err)
	}
	logger.Debug("federation configured",
		"config", opts.Config,
		"members", len(cfg.Members),
		"batch_size", cfg.BatchSize)

	fed := federation.New(members, append([]federation.Option{
		federation.WithLogger(logger),
		federation.WithEngineOptions(cfg.EngineOptions()...),
	}, fedOpts...)...)
	return &session{cfg: cfg, fed: fed, logger: logger}, nil
}

func (s *session) Close() error {
	return s.fed.Members().Close()
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// readQuery returns the query text from the single positional argument,
// or from file ("-" for stdin).
func readQuery(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", NewExitError(ExitCommandError, "pass the query as an argument or with --file, not both")
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read query from stdin", err)
		}
		return string(data), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", WrapExitError(ExitCommandError, "failed to read query file", err)
		}
		return string(data), nil
	case len(args) == 1:
		return args[0], nil
	}
	return "", NewExitError(ExitCommandError, "a query argument or --file is required")
}

// parseBindings parses name=term pairs, terms in N-Triples syntax.
func parseBindings(pairs []string) (ir.BindingSet, error) {
	var bindings []ir.Binding
	for _, pair := range pairs {
		name, text, ok := strings.Cut(pair, "=")
		name = strings.TrimPrefix(name, "?")
		if !ok || name == "" {
			return ir.BindingSet{}, NewExitError(ExitCommandError, fmt.Sprintf("invalid binding %q: want name=term", pair))
		}
		term, err := ir.ParseTerm(text)
		if err != nil {
			return ir.BindingSet{}, WrapExitError(ExitCommandError, fmt.Sprintf("invalid binding %q", pair), err)
		}
		bindings = append(bindings, ir.B(name, term))
	}
	return ir.NewBindingSet(bindings...), nil
}

// queryError maps a parse or evaluation error to its exit code and CLI
// error code. Syntax errors are the caller's fault.
func queryError(err error) (*ExitError, string) {
	var syntax *sparql.SyntaxError
	if errors.As(err, &syntax) {
		return WrapExitError(ExitCommandError, "invalid query", err), ErrCodeSyntax
	}
	return WrapExitError(ExitFailure, "query failed", err), ErrCodeQuery
}

// reportError prints err through f and returns it as an ExitError. A
// configuration error keeps its own code.
func reportError(f *OutputFormatter, code string, err *ExitError) error {
	var le *config.LoadError
	if errors.As(err, &le) {
		code = le.Code
	}
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return err
}

func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// asExitError returns err as an ExitError, classifying other errors as
// command errors.
func asExitError(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return WrapExitError(ExitCommandError, "command failed", err)
}
