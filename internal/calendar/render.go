package calendar

import (
	"fmt"
	"io"
	"strings"
)

// Render writes a fixed-width text view of g.
//
// Each cell shows its departures as "<id", then its occupants as ">id" on the
// check-in day or "=id" on stay-over days; an empty cell is ".". Excluded
// stays are listed after the grid.
func Render(w io.Writer, g Grid) error {
	dates := g.Dates()

	labels := make([][]string, len(g.rooms))
	width := 5
	for r := range g.rooms {
		labels[r] = make([]string, len(dates))
		for c := range dates {
			s := cellLabel(g.cells[r][c])
			labels[r][c] = s
			width = max(width, len(s))
		}
	}
	roomWidth := 4
	for _, room := range g.rooms {
		roomWidth = max(roomWidth, len(room.DisplayName()))
	}

	var lines []string
	var b strings.Builder
	fmt.Fprintf(&b, "%-*s", roomWidth, "ROOM")
	for _, d := range dates {
		fmt.Fprintf(&b, " %-*s", width, d.String()[5:])
	}
	lines = append(lines, b.String())

	for r, room := range g.rooms {
		b.Reset()
		fmt.Fprintf(&b, "%-*s", roomWidth, room.DisplayName())
		for c := range dates {
			fmt.Fprintf(&b, " %-*s", width, labels[r][c])
		}
		lines = append(lines, b.String())
	}

	for _, issue := range g.issues {
		lines = append(lines, fmt.Sprintf("excluded %s (%s): %s", issue.StayID, issue.Kind, issue.Message))
	}

	for _, line := range lines {
		if _, err := io.WriteString(w, strings.TrimRight(line, " ")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func cellLabel(c Cell) string {
	var parts []string
	for _, p := range c.Departures {
		parts = append(parts, "<"+p.Stay.ID)
	}
	for _, p := range c.Stays {
		prefix := "="
		if p.Mark == MarkCheckIn {
			prefix = ">"
		}
		parts = append(parts, prefix+p.Stay.ID)
	}
	if len(parts) == 0 {
		return "."
	}
	return strings.Join(parts, "")
}
