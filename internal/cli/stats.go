package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bagoessprasetyo/property-management-sub000/internal/availability"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Start string
	End   string
}

// StatsResult is the output of the stats command.
type StatsResult struct {
	Start string `json:"start"`
	End   string `json:"end"`
	availability.Stats
	Rooms     int     `json:"rooms"`
	Occupancy float64 `json:"occupancy"`
}

// Text renders the aggregate as an aligned list.
func (r StatsResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statistics %s..%s\n", r.Start, r.End)
	fmt.Fprintf(&b, "  %-22s %d\n", "stays", r.Total)
	for _, s := range domain.Statuses {
		if n := r.ByStatus[s]; n > 0 {
			fmt.Fprintf(&b, "    %-20s %d\n", s.Label(), n)
		}
	}
	fmt.Fprintf(&b, "  %-22s %s\n", "revenue", r.Revenue)
	fmt.Fprintf(&b, "  %-22s %d\n", "guests", r.Guests)
	fmt.Fprintf(&b, "  %-22s %d\n", "check-ins", r.CheckIns)
	fmt.Fprintf(&b, "  %-22s %d\n", "check-outs", r.CheckOuts)
	fmt.Fprintf(&b, "  %-22s %d\n", "occupied room-nights", r.OccupiedRoomNights)
	fmt.Fprintf(&b, "  %-22s %.1f%%\n", "occupancy", r.Occupancy*100)
	return b.String()
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate stays over a period",
		Long: `Aggregate the stays overlapping --start..--end.

Check-ins and check-outs count when they fall on or between the two
dates. Revenue and occupancy leave cancelled stays out. --end defaults to
--start, which reports a single day.

Examples:
  pmgrid stats --start 2025-08-18 --end 2025-08-24
  pmgrid stats --start 2025-08-20 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.End, "end", "", "last date YYYY-MM-DD (default --start)")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	start, err := parseDateFlag("start", opts.Start, today())
	if err != nil {
		return err
	}
	end, err := parseDateFlag("end", opts.End, start)
	if err != nil {
		return err
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	st, err := s.engine.Stats(ctx, start, end)
	if err != nil {
		return WrapExitError(ExitCommandError, "stats query failed", err)
	}
	rooms, err := s.engine.Rooms(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load rooms", err)
	}

	return opts.formatter(cmd).Success(StatsResult{
		Start:     start.String(),
		End:       end.String(),
		Stats:     st,
		Rooms:     len(rooms),
		Occupancy: st.OccupancyRate(len(rooms)),
	})
}
