package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bagoessprasetyo/property-management-sub000/internal/fixture"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	Property string        `json:"property"`
	Rooms    int           `json:"rooms"`
	Stays    int           `json:"stays"`
	Failures []SeedFailure `json:"failures,omitempty"`
}

// SeedFailure is one fixture record the store rejected.
type SeedFailure struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
	Error  string `json:"error"`
}

// Text renders the result for text output.
func (r SeedResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seeded property %s: %d rooms, %d stays\n", r.Property, r.Rooms, r.Stays)
	for _, f := range r.Failures {
		fmt.Fprintf(&b, "  skipped %s %s: %s\n", f.Entity, f.ID, f.Error)
	}
	return b.String()
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Load a property fixture into the database",
		Long: `Load a property fixture into the database.

The fixture is validated against its schema before anything is written.
Rooms are upserted; stays are inserted and a stay the store rejects (for
example a double booking) is reported and skipped.

Exit codes:
  0 - Every record was written
  1 - One or more records were rejected
  2 - Command error (invalid fixture, database problems)

Examples:
  pmgrid seed hotel.yaml
  pmgrid seed hotel.yaml --db /tmp/pm.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	fx, err := fixture.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load fixture", err)
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	seeded, err := fx.Seed(cmd.Context(), s.store)
	if err != nil {
		return WrapExitError(ExitCommandError, "seed interrupted", err)
	}

	result := SeedResult{Property: fx.Property, Rooms: seeded.Rooms, Stays: seeded.Stays}
	for _, f := range seeded.Failures {
		result.Failures = append(result.Failures, SeedFailure{
			Entity: string(f.Entity),
			ID:     f.ID,
			Error:  f.Err.Error(),
		})
	}

	out := opts.formatter(cmd)
	if err := out.Success(result); err != nil {
		return err
	}
	if len(result.Failures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d fixture records rejected", len(result.Failures)))
	}
	return nil
}
