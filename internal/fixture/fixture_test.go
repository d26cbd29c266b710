package fixture

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

func TestLoad_Valid(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "changeover.yaml"))
	require.NoError(t, err)

	require.Len(t, f.Rooms, 3)
	require.Len(t, f.Stays, 3)
	assert.Equal(t, "hotel-1", f.Property)
	assert.Equal(t, "hotel-1", f.Rooms[0].PropertyID, "rooms inherit the fixture property")
	assert.Equal(t, "hotel-1", f.Stays[2].PropertyID)
	assert.Equal(t, domain.HousekeepingDirty, f.Rooms[1].Housekeeping)
	assert.Equal(t, domain.Money(25000), f.Rooms[2].BaseRate)

	a := f.Stays[0]
	assert.Equal(t, domain.MustParseDate("2025-08-18"), a.CheckIn)
	assert.Equal(t, domain.MustParseDate("2025-08-21"), a.CheckOut)
	assert.Equal(t, domain.StatusConfirmed, a.Status)
	assert.Equal(t, "Ana Lima", a.GuestName)
	assert.Equal(t, domain.StatusCancelled, f.Stays[2].Status)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_ReportsEverySchemaViolation(t *testing.T) {
	_, err := Load(filepath.Join("testdata", "bad_schema.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)

	msg := err.Error()
	assert.Contains(t, msg, "housekeeping")
	assert.Contains(t, msg, "check_in")
	assert.Contains(t, msg, "status")
	assert.Contains(t, msg, "colour")
}

func TestParse_RequiresRooms(t *testing.T) {
	_, err := Parse([]byte("stays: []\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParse_Duplicates(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "room",
			yaml: "rooms:\n  - id: R1\n  - id: R1\n",
			want: "duplicate room R1",
		},
		{
			name: "stay",
			yaml: `rooms:
  - id: R1
stays:
  - {id: A, room_id: R1, check_in: 2025-08-18, check_out: 2025-08-19}
  - {id: A, room_id: R1, check_in: 2025-08-20, check_out: 2025-08-21}
`,
			want: "duplicate stay A",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_InvertedDates(t *testing.T) {
	_, err := Parse([]byte(`rooms:
  - id: R1
stays:
  - {id: A, room_id: R1, check_in: 2025-08-20, check_out: 2025-08-18}
`))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "not after check-in")
}

// fakeSeeder records writes and fails the ids in reject.
type fakeSeeder struct {
	rooms  []string
	stays  []string
	reject map[string]bool
}

func (s *fakeSeeder) UpsertRoom(_ context.Context, r domain.Room) error {
	if s.reject[r.ID] {
		return errors.New("rejected")
	}
	s.rooms = append(s.rooms, r.ID)
	return nil
}

func (s *fakeSeeder) InsertStay(_ context.Context, st domain.Stay) (domain.Stay, error) {
	if s.reject[st.ID] {
		return domain.Stay{}, errors.New("rejected")
	}
	s.stays = append(s.stays, st.ID)
	return st, nil
}

func TestSeed_ContinuesPastFailures(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "changeover.yaml"))
	require.NoError(t, err)

	s := &fakeSeeder{reject: map[string]bool{"R102": true, "B": true}}
	res, err := f.Seed(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, []string{"R101", "S201"}, s.rooms)
	assert.Equal(t, []string{"A", "X"}, s.stays)
	assert.Equal(t, 2, res.Rooms)
	assert.Equal(t, 2, res.Stays)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, domain.EntityRoom, res.Failures[0].Entity)
	assert.Equal(t, "B", res.Failures[1].ID)
}

func TestSeed_StopsOnCancelledContext(t *testing.T) {
	f, err := Load(filepath.Join("testdata", "changeover.yaml"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Seed(ctx, &fakeSeeder{})
	assert.ErrorIs(t, err, context.Canceled)
}
