package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AvailOptions holds flags for the avail command.
type AvailOptions struct {
	*RootOptions
	Start string
	End   string
	Rooms []string
}

// AvailResult is the output of the avail command.
type AvailResult struct {
	Start string      `json:"start"`
	End   string      `json:"end"`
	Rooms []RoomAvail `json:"rooms"`
}

// RoomAvail is the answer for one room.
type RoomAvail struct {
	Room      string   `json:"room"`
	Number    string   `json:"number"`
	Available bool     `json:"available"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Text renders one line per room.
func (r AvailResult) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Availability %s..%s\n", r.Start, r.End)
	for _, room := range r.Rooms {
		if room.Available {
			fmt.Fprintf(&b, "  %-6s free\n", room.Number)
			continue
		}
		fmt.Fprintf(&b, "  %-6s booked (%s)\n", room.Number, strings.Join(room.Conflicts, ", "))
	}
	return b.String()
}

// NewAvailCommand creates the avail command.
func NewAvailCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AvailOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "avail",
		Short: "Report which rooms are free for a date range",
		Long: `Report which rooms are free for the nights from --start up to --end.

The range is half-open: a stay checking out on --start or checking in on
--end does not conflict. Cancelled stays never conflict.

Examples:
  pmgrid avail --start 2025-08-21 --end 2025-08-23
  pmgrid avail --start 2025-08-21 --end 2025-08-23 --room R101 --room R102`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAvail(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first night YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.End, "end", "", "check-out date YYYY-MM-DD (required)")
	cmd.Flags().StringArrayVar(&opts.Rooms, "room", nil, "restrict to room id (repeatable)")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runAvail(opts *AvailOptions, cmd *cobra.Command) error {
	start, err := parseDateFlag("start", opts.Start, today())
	if err != nil {
		return err
	}
	end, err := parseDateFlag("end", opts.End, start.AddDays(1))
	if err != nil {
		return err
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	results, err := s.engine.Availability(cmd.Context(), start, end, opts.Rooms...)
	if err != nil {
		return WrapExitError(ExitCommandError, "availability query failed", err)
	}

	out := AvailResult{Start: start.String(), End: end.String(), Rooms: []RoomAvail{}}
	for _, r := range results {
		ra := RoomAvail{Room: r.Room.ID, Number: r.Room.DisplayName(), Available: r.Available}
		for _, c := range r.Conflicts {
			ra.Conflicts = append(ra.Conflicts, c.ID)
		}
		out.Rooms = append(out.Rooms, ra)
	}
	return opts.formatter(cmd).Success(out)
}
