package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
)

// MoveOptions holds flags for the move command.
type MoveOptions struct {
	*RootOptions
	From     string
	To       string
	CheckOut string
}

// MoveResult is the output of the move command.
type MoveResult struct {
	Stay     string `json:"stay"`
	Outcome  string `json:"outcome"`
	Room     string `json:"room"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Version  int64  `json:"version"`
	Total    string `json:"total"`
}

// Text renders the outcome and where the stay is now.
func (r MoveResult) Text() string {
	return fmt.Sprintf("%s %s: room %s, %s to %s (version %d, total %s)\n",
		r.Stay, r.Outcome, r.Room, r.CheckIn, r.CheckOut, r.Version, r.Total)
}

// NewMoveCommand creates the move command.
func NewMoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "move <stay-id>",
		Short: "Reschedule a stay as if dragged on the grid",
		Long: `Reschedule a stay as if it were dragged from one grid cell to another.

Cells are written ROOM@YYYY-MM-DD. The stay shifts by the distance between
--from and --to and keeps its number of nights unless --check-out is given.
Dropping a stay where it was picked up changes nothing.

Exit codes:
  0 - Move committed, or nothing to do
  1 - The store rejected the move and it was rolled back
  2 - Command error (bad cells, unknown stay, invalid dates)

Examples:
  pmgrid move A --from R101@2025-08-18 --to R102@2025-08-20
  pmgrid move A --from R101@2025-08-18 --to R101@2025-08-18 --check-out 2025-08-20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMove(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "cell the stay is picked up from, ROOM@YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "cell the stay is dropped on, ROOM@YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&opts.CheckOut, "check-out", "", "explicit new check-out date YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runMove(opts *MoveOptions, stayID string, cmd *cobra.Command) error {
	src, err := schedule.ParseCell(opts.From)
	if err != nil {
		return WrapExitError(ExitCommandError, "--from", err)
	}
	dst, err := schedule.ParseCell(opts.To)
	if err != nil {
		return WrapExitError(ExitCommandError, "--to", err)
	}
	var moveOpts []schedule.MoveOption
	if opts.CheckOut != "" {
		d, err := parseDateFlag("check-out", opts.CheckOut, src.Date)
		if err != nil {
			return err
		}
		moveOpts = append(moveOpts, schedule.WithCheckOut(d))
	}

	s, err := opts.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	out := opts.formatter(cmd)
	outcome, moveErr := s.engine.ProposeMove(ctx, stayID, src, dst, moveOpts...)
	if moveErr != nil {
		status := ExitCommandError
		var me *schedule.MoveError
		if errors.As(moveErr, &me) && me.Code == schedule.ErrCodeMoveRejected {
			status = ExitFailure
		}
		return out.Fail(WrapExitError(status, "move "+stayID, moveErr))
	}

	stay, err := s.store.GetStay(ctx, stayID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read stay", err)
	}
	return out.Success(MoveResult{
		Stay:     stayID,
		Outcome:  string(outcome),
		Room:     stay.RoomID,
		CheckIn:  stay.CheckIn.String(),
		CheckOut: stay.CheckOut.String(),
		Version:  stay.Version,
		Total:    stay.Total.String(),
	})
}
