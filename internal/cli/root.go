// Package cli implements cafectl, a terminal front end for the barista, customer and queue screens.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaidashi/coffee-queue/internal/clients"
	"github.com/vaidashi/coffee-queue/internal/surface"
	"github.com/vaidashi/coffee-queue/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server       string
	Timeout      time.Duration
	IdentityPath string
	Format       string // "json" | "text"
	Verbose      bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for cafectl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cafectl",
		Short: "cafectl - coffee order queue from the terminal",
		Long:  "Place, prepare and follow coffee orders against a running coffee queue API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				err := NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("CAFE_SERVER", "http://localhost:8080"), "coffee queue API base URL")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-request timeout")
	cmd.PersistentFlags().StringVar(&opts.IdentityPath, "identity", "", "file remembering your order (default: user config dir)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewForgetCommand(opts))

	return cmd
}

// newLoop builds a loop talking to the configured server; cfg supplies the surface specific settings
func (o *RootOptions) newLoop(cfg surface.Config, errOut io.Writer) (*surface.Loop, error) {
	identity, err := o.identityStore()
	if err != nil {
		return nil, err
	}

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	l := logger.New(errOut, level, "text")

	cfg.RequestTimeout = o.Timeout
	cfg.Identity = identity
	cfg.Logger = l
	return surface.New(clients.NewOrdersClient(o.Server, o.Timeout, l), cfg), nil
}

func (o *RootOptions) identityStore() (*surface.FileIdentityStore, error) {
	path := o.IdentityPath
	if path == "" {
		var err error
		if path, err = surface.DefaultIdentityPath(); err != nil {
			return nil, WrapExitError(ExitCommandError, "cannot locate identity file", err)
		}
	}
	return surface.NewFileIdentityStore(path), nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
