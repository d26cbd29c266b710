package calendar

import (
	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Mark says how a stay relates to the date of the cell it appears in.
type Mark string

const (
	// MarkCheckIn is the stay's first occupied date.
	MarkCheckIn Mark = "check_in"
	// MarkStayOver is any later occupied date.
	MarkStayOver Mark = "stay_over"
	// MarkCheckOut is the departure day. It is an annotation only; the
	// date is not occupied.
	MarkCheckOut Mark = "check_out"
)

// Placement is one stay in one cell.
type Placement struct {
	Stay domain.Stay
	Mark Mark
}

// Cell is the occupancy list for one (room, date) pair.
type Cell struct {
	RoomID string
	Date   domain.Date
	// Stays occupying the date, in stay input order.
	Stays []Placement
	// Departures are stays checking out on this date.
	Departures []Placement
}

// Occupied reports whether any stay occupies the cell.
func (c Cell) Occupied() bool { return len(c.Stays) > 0 }

// IssueKind classifies a data-integrity problem found while building.
type IssueKind string

const (
	IssueMissingRoom    IssueKind = "missing_room"
	IssueUnknownRoom    IssueKind = "unknown_room"
	IssueMalformedDates IssueKind = "malformed_dates"
)

// Issue records a stay that was excluded from the grid.
type Issue struct {
	StayID  string
	RoomID  string
	Kind    IssueKind
	Message string
}

// Grid is the room×date projection of a stay set.
type Grid struct {
	window  Window
	rooms   []domain.Room
	rowOf   map[string]int
	cells   [][]Cell
	issues  []Issue
	located map[string]domain.Range
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

type buildConfig struct {
	logger *zap.Logger
}

// WithLogger reports excluded stays as warnings on logger.
func WithLogger(logger *zap.Logger) BuildOption {
	return func(c *buildConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Build projects stays onto rooms × window.
//
// Every room (first occurrence of each id, in input order) gets one row and
// every window date one column. Stays whose room is missing or unknown, or
// whose dates are missing or inverted, are left out and reported through
// Issues; they never abort the build.
func Build(rooms []domain.Room, stays []domain.Stay, window Window, opts ...BuildOption) Grid {
	cfg := buildConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	g := Grid{
		window:  window,
		rowOf:   make(map[string]int, len(rooms)),
		located: make(map[string]domain.Range),
	}

	for _, room := range rooms {
		if _, dup := g.rowOf[room.ID]; dup {
			cfg.logger.Warn("duplicate room in room set", zap.String("room_id", room.ID))
			continue
		}
		g.rowOf[room.ID] = len(g.rooms)
		g.rooms = append(g.rooms, room)

		row := make([]Cell, window.Len())
		for i, d := range window.dates {
			row[i] = Cell{RoomID: room.ID, Date: d}
		}
		g.cells = append(g.cells, row)
	}

	first := window.First()
	for _, stay := range stays {
		issue, ok := g.check(stay)
		if !ok {
			g.issues = append(g.issues, issue)
			cfg.logger.Warn("stay excluded from grid",
				zap.String("stay_id", issue.StayID),
				zap.String("room_id", issue.RoomID),
				zap.String("kind", string(issue.Kind)),
				zap.String("reason", issue.Message),
			)
			continue
		}
		if window.Len() == 0 {
			continue
		}

		row := g.cells[g.rowOf[stay.RoomID]]
		// Column range of [CheckIn, CheckOut) clipped to the window.
		from := max(first.DaysUntil(stay.CheckIn), 0)
		to := min(first.DaysUntil(stay.CheckOut), window.Len())
		for i := from; i < to; i++ {
			mark := MarkStayOver
			if row[i].Date == stay.CheckIn {
				mark = MarkCheckIn
			}
			row[i].Stays = append(row[i].Stays, Placement{Stay: stay, Mark: mark})
		}
		if from < to {
			g.located[stay.ID] = stay.Range()
		}

		if out := first.DaysUntil(stay.CheckOut); out >= 0 && out < window.Len() {
			row[out].Departures = append(row[out].Departures, Placement{Stay: stay, Mark: MarkCheckOut})
		}
	}

	return g
}

func (g *Grid) check(stay domain.Stay) (Issue, bool) {
	issue := Issue{StayID: stay.ID, RoomID: stay.RoomID}
	switch {
	case stay.RoomID == "":
		issue.Kind = IssueMissingRoom
		issue.Message = "stay has no room reference"
	case stay.CheckIn.IsZero() || stay.CheckOut.IsZero():
		issue.Kind = IssueMalformedDates
		issue.Message = "stay is missing check-in or check-out"
	case !stay.CheckOut.After(stay.CheckIn):
		issue.Kind = IssueMalformedDates
		issue.Message = "check-out " + stay.CheckOut.String() + " is not after check-in " + stay.CheckIn.String()
	default:
		if _, ok := g.rowOf[stay.RoomID]; !ok {
			issue.Kind = IssueUnknownRoom
			issue.Message = "room " + stay.RoomID + " is not in the room set"
			return issue, false
		}
		return Issue{}, true
	}
	return issue, false
}

// Window returns the window the grid was built for.
func (g Grid) Window() Window { return g.window }

// Rooms returns the grid rows in order.
func (g Grid) Rooms() []domain.Room {
	out := make([]domain.Room, len(g.rooms))
	copy(out, g.rooms)
	return out
}

// Dates returns the grid columns in order.
func (g Grid) Dates() []domain.Date { return g.window.Dates() }

// Empty reports whether the grid has no cells.
func (g Grid) Empty() bool { return len(g.rooms) == 0 || g.window.Len() == 0 }

// Cell returns the cell for (roomID, d). ok is false outside the grid.
func (g Grid) Cell(roomID string, d domain.Date) (Cell, bool) {
	row, ok := g.rowOf[roomID]
	if !ok || g.window.Len() == 0 {
		return Cell{}, false
	}
	col := g.window.First().DaysUntil(d)
	if col < 0 || col >= g.window.Len() {
		return Cell{}, false
	}
	return g.cells[row][col], true
}

// Row returns every cell of a room in date order.
func (g Grid) Row(roomID string) []Cell {
	row, ok := g.rowOf[roomID]
	if !ok {
		return nil
	}
	out := make([]Cell, len(g.cells[row]))
	copy(out, g.cells[row])
	return out
}

// Occupied reports whether any stay occupies (roomID, d).
func (g Grid) Occupied(roomID string, d domain.Date) bool {
	c, ok := g.Cell(roomID, d)
	return ok && c.Occupied()
}

// StayIDs returns the ids of the stays occupying (roomID, d).
func (g Grid) StayIDs(roomID string, d domain.Date) []string {
	c, ok := g.Cell(roomID, d)
	if !ok {
		return nil
	}
	ids := make([]string, len(c.Stays))
	for i, p := range c.Stays {
		ids[i] = p.Stay.ID
	}
	return ids
}

// Locate returns the occupied range of a placed stay.
// ok is false if the stay is not visible in the window.
func (g Grid) Locate(stayID string) (domain.Range, bool) {
	r, ok := g.located[stayID]
	return r, ok
}

// Issues returns the stays excluded during the build.
func (g Grid) Issues() []Issue {
	out := make([]Issue, len(g.issues))
	copy(out, g.issues)
	return out
}
