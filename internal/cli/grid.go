package cli

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
)

// GridOptions holds flags for the grid command.
type GridOptions struct {
	*RootOptions
	Start string
	View  string
	Days  int // 0 uses window.days from the config
}

// GridResult is the JSON form of a grid.
type GridResult struct {
	Window string      `json:"window"`
	View   string      `json:"view"`
	Dates  []string    `json:"dates"`
	Rooms  []GridRow   `json:"rooms"`
	Issues []GridIssue `json:"issues,omitempty"`

	text bytes.Buffer
}

// GridRow is one room's cells.
type GridRow struct {
	Room   string     `json:"room"`
	Number string     `json:"number"`
	Cells  []GridCell `json:"cells"`
}

// GridCell lists the stays occupying a date and those departing on it.
type GridCell struct {
	Date       string   `json:"date"`
	Stays      []string `json:"stays,omitempty"`
	CheckIns   []string `json:"check_ins,omitempty"`
	Departures []string `json:"departures,omitempty"`
}

// GridIssue is a stay left out of the grid.
type GridIssue struct {
	Stay    string `json:"stay"`
	Room    string `json:"room,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Text renders the grid table.
func (r *GridResult) Text() string { return r.text.String() }

// NewGridCommand creates the grid command.
func NewGridCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GridOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Render the room by date occupancy grid",
		Long: `Render the room by date occupancy grid.

Each cell shows departures as "<id", the check-in day as ">id" and later
nights as "=id"; "." is a free night. Stays with missing or unknown rooms
or malformed dates are listed below the grid.

Examples:
  pmgrid grid --start 2025-08-18 --view week
  pmgrid grid --start 2025-08-01 --view month
  pmgrid grid --days 21 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrid(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "anchor date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&opts.View, "view", string(calendar.ViewRolling), "window kind (day|week|month|rolling)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "rolling window length (default window.days from config)")

	return cmd
}

func runGrid(opts *GridOptions, cmd *cobra.Command) error {
	start, err := parseDateFlag("start", opts.Start, today())
	if err != nil {
		return err
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	days := opts.Days
	if days == 0 {
		days = s.cfg.Window.Days
	}
	window, err := calendar.ParseView(opts.View, start, days)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid window", err)
	}

	g, err := s.engine.Grid(cmd.Context(), window)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build grid", err)
	}

	result, err := gridResult(g)
	if err != nil {
		return err
	}
	return opts.formatter(cmd).Success(result)
}

func gridResult(g calendar.Grid) (*GridResult, error) {
	w := g.Window()
	result := &GridResult{Window: w.String(), View: string(w.Kind())}
	for _, d := range g.Dates() {
		result.Dates = append(result.Dates, d.String())
	}

	for _, room := range g.Rooms() {
		row := GridRow{Room: room.ID, Number: room.DisplayName()}
		for _, c := range g.Row(room.ID) {
			cell := GridCell{Date: c.Date.String()}
			for _, p := range c.Stays {
				cell.Stays = append(cell.Stays, p.Stay.ID)
				if p.Mark == calendar.MarkCheckIn {
					cell.CheckIns = append(cell.CheckIns, p.Stay.ID)
				}
			}
			for _, p := range c.Departures {
				cell.Departures = append(cell.Departures, p.Stay.ID)
			}
			row.Cells = append(row.Cells, cell)
		}
		result.Rooms = append(result.Rooms, row)
	}

	for _, issue := range g.Issues() {
		result.Issues = append(result.Issues, GridIssue{
			Stay:    issue.StayID,
			Room:    issue.RoomID,
			Kind:    string(issue.Kind),
			Message: issue.Message,
		})
	}

	if err := calendar.Render(&result.text, g); err != nil {
		return nil, fmt.Errorf("render grid: %w", err)
	}
	return result, nil
}
