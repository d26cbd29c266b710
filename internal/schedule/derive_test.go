package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/testutil"
)

func cell(room, date string) Cell {
	return Cell{RoomID: room, Date: testutil.D(date)}
}

func TestDerive_RoomAndDateTogether(t *testing.T) {
	a := testutil.Stay("A", "R101", "2025-08-18", "2025-08-20")

	patch, next, err := Derive(a, cell("R101", "2025-08-18"), cell("R102", "2025-08-20"), nil)
	require.NoError(t, err)

	assert.Equal(t, "R102", next.RoomID)
	assert.Equal(t, testutil.D("2025-08-20"), next.CheckIn)
	assert.Equal(t, testutil.D("2025-08-22"), next.CheckOut)
	require.NotNil(t, patch.RoomID)
	require.NotNil(t, patch.CheckIn)
	require.NotNil(t, patch.CheckOut)
	assert.Nil(t, patch.Status)
}

func TestDerive_RoomOnlyLeavesDates(t *testing.T) {
	a := testutil.Stay("A", "R101", "2025-08-18", "2025-08-20")

	patch, next, err := Derive(a, cell("R101", "2025-08-19"), cell("R103", "2025-08-19"), nil)
	require.NoError(t, err)
	assert.Equal(t, a.Range(), next.Range())
	assert.Nil(t, patch.CheckIn)
	assert.Nil(t, patch.CheckOut)
	assert.Equal(t, "R103", *patch.RoomID)
}

func TestDerive_DurationPreserved(t *testing.T) {
	for nights := 1; nights <= 14; nights++ {
		in := testutil.D("2025-08-18")
		s := domain.Stay{ID: "S", RoomID: "R1", CheckIn: in, CheckOut: in.AddDays(nights)}
		for delta := -10; delta <= 10; delta++ {
			dst := in.AddDays(delta)
			_, next, err := Derive(s, Cell{RoomID: "R1", Date: in}, Cell{RoomID: "R1", Date: dst}, nil)
			require.NoError(t, err)
			assert.Equal(t, s.CheckOut.AddDays(delta), next.CheckOut)
			assert.Equal(t, nights, next.Nights())
		}
	}
}

func TestDerive_DurationNotInferredFromGrabbedCell(t *testing.T) {
	// Grabbing the middle night of a three-night stay still keeps three nights.
	s := testutil.Stay("S", "R1", "2025-08-18", "2025-08-21")

	_, next, err := Derive(s, cell("R1", "2025-08-19"), cell("R1", "2025-08-25"), nil)
	require.NoError(t, err)
	assert.Equal(t, testutil.D("2025-08-25"), next.CheckIn)
	assert.Equal(t, 3, next.Nights())
}

func TestDerive_CheckOutOverride(t *testing.T) {
	s := testutil.Stay("S", "R1", "2025-08-18", "2025-08-20")
	out := testutil.D("2025-08-23")

	patch, next, err := Derive(s, cell("R1", "2025-08-18"), cell("R1", "2025-08-18"), &out)
	require.NoError(t, err)
	assert.Nil(t, patch.CheckIn)
	assert.Equal(t, out, *patch.CheckOut)
	assert.Equal(t, 5, next.Nights())

	bad := testutil.D("2025-08-18")
	_, _, err = Derive(s, cell("R1", "2025-08-18"), cell("R1", "2025-08-18"), &bad)
	assert.ErrorIs(t, err, ErrInvalidMove)
	assert.False(t, IsRecoverable(err))
}

func TestDerive_DestinationAlreadyCurrentRoom(t *testing.T) {
	s := testutil.Stay("S", "R2", "2025-08-18", "2025-08-20")

	// A stale source cell that claims R1 while the record already says R2.
	patch, _, err := Derive(s, cell("R1", "2025-08-18"), cell("R2", "2025-08-18"), nil)
	require.NoError(t, err)
	assert.True(t, patch.Empty())
}

func TestParseCell(t *testing.T) {
	c, err := ParseCell("R102@2025-08-20")
	require.NoError(t, err)
	assert.Equal(t, Cell{RoomID: "R102", Date: testutil.D("2025-08-20")}, c)
	assert.Equal(t, "R102@2025-08-20", c.String())

	for _, bad := range []string{"", "R102", "@2025-08-20", "R102@20-08-2025"} {
		_, err := ParseCell(bad)
		assert.Error(t, err, bad)
	}
}
