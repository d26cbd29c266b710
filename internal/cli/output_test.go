package cli

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bagoessprasetyo/property-management-sub000/internal/calendar"
	"github.com/bagoessprasetyo/property-management-sub000/internal/engine"
	"github.com/bagoessprasetyo/property-management-sub000/internal/fixture"
	"github.com/bagoessprasetyo/property-management-sub000/internal/schedule"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
)

func rejectedMove() error {
	return WrapExitError(ExitFailure, "move A", &schedule.MoveError{
		Code:    schedule.ErrCodeMoveRejected,
		StayID:  "A",
		MoveID:  "m-1",
		Message: "store rejected the move",
		Err:     store.ErrConflict,
	})
}

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(MoveResult{Stay: "A", Outcome: "committed", Room: "R102", Version: 2}))

	var resp struct {
		Status string     `json:"status"`
		Data   MoveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "R102", resp.Data.Room)
	assert.Equal(t, int64(2), resp.Data.Version)
}

func TestOutputFormatter_TextUsesTexter(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(SeedResult{Property: "hotel-1", Rooms: 3, Stays: 2}))
	assert.Equal(t, "Seeded property hotel-1: 3 rooms, 2 stays\n", buf.String())
}

func TestOutputFormatter_TextPlainValue(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success("nothing to do"))
	assert.Equal(t, "nothing to do\n", buf.String())
}

func TestOutputFormatter_FailJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Fail(rejectedMove())
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.ErrorIs(t, err, store.ErrConflict)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMoveRejected, resp.Error.Code)
	assert.Equal(t, "MOVE_REJECTED: stay A: store rejected the move: conflicting stay", resp.Error.Message)
	assert.Equal(t, map[string]string{"stay": "A", "move": "m-1"}, resp.Error.Details)
}

func TestOutputFormatter_FailText(t *testing.T) {
	fetch := WrapExitError(ExitCommandError, "failed to build grid",
		engine.NewFetchError("grid", "stays:p1", errors.New("disk I/O error")))

	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	_ = formatter.Fail(fetch)
	assert.Equal(t, "Error [FETCH_FAILED]: grid: FETCH_FAILED: could not load stays (view=stays:p1): disk I/O error\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	_ = formatter.Fail(fetch)
	assert.Contains(t, buf.String(), "  op: grid\n  view: stays:p1\n")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"move error", rejectedMove(), CodeMoveRejected},
		{"fetch failure", engine.NewFetchError("stats", "", errors.New("locked")), CodeFetchFailed},
		{"store conflict", fmt.Errorf("insert B: %w", store.ErrConflict), CodeConflict},
		{"missing record", WrapExitError(ExitCommandError, "failed to read stay", store.ErrNotFound), CodeNotFound},
		{"bad fixture", fmt.Errorf("%w: rooms[0].id is empty", fixture.ErrInvalid), CodeInvalidFixture},
		{"bad window", WrapExitError(ExitCommandError, "invalid window", calendar.ErrInvalidWindow), CodeInvalidQuery},
		{"command error", NewExitError(ExitCommandError, "--start: bad date"), CodeCommand},
		{"unclassified", errors.New("boom"), CodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorCode(tt.err))
		})
	}
}

func TestReport(t *testing.T) {
	t.Run("json goes to stdout", func(t *testing.T) {
		root := NewRootCommand()
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(errOut)
		require.NoError(t, root.PersistentFlags().Set("format", "json"))

		code := Report(root, WrapExitError(ExitCommandError, "stats query failed",
			fmt.Errorf("engine: %w", calendar.ErrInvalidWindow)))
		assert.Equal(t, ExitCommandError, code)
		assert.Empty(t, errOut.String())

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, CodeInvalidQuery, resp.Error.Code)
		assert.Equal(t, "engine: invalid view window", resp.Error.Message)
	})

	t.Run("text goes to stderr", func(t *testing.T) {
		root := NewRootCommand()
		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(errOut)

		assert.Equal(t, ExitFailure, Report(root, errors.New(`unknown command "mvoe"`)))
		assert.Empty(t, out.String())
		assert.Equal(t, "Error [FAILED]: unknown command \"mvoe\"\n", errOut.String())
	})

	t.Run("reported errors are not written again", func(t *testing.T) {
		root := NewRootCommand()
		out := &bytes.Buffer{}
		root.SetOut(out)
		root.SetErr(out)

		err := (&OutputFormatter{Format: "text", Writer: &bytes.Buffer{}}).Fail(rejectedMove())
		assert.Equal(t, ExitFailure, Report(root, fmt.Errorf("move: %w", err)))
		assert.Empty(t, out.String())
	})
}

func TestExitError(t *testing.T) {
	cause := errors.New("no such table")
	err := WrapExitError(ExitCommandError, "failed to open database", cause)

	assert.Equal(t, "failed to open database: no such table", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("seed: %w", err)))

	plain := NewExitError(ExitFailure, "2 fixture records rejected")
	assert.Equal(t, "2 fixture records rejected", plain.Error())
	assert.Equal(t, ExitFailure, GetExitCode(plain))

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("unclassified")))
}
