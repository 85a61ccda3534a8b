package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/beamsim/beamsim/internal/logging"
	"github.com/beamsim/beamsim/internal/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// testApp is an app with discarded logs and no config loaded.
func testApp(t *testing.T) *app {
	t.Helper()
	a := &app{
		logs: logging.NewSlogManager(),
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		zl:   zerolog.Nop(),
		sess: session.NewContext(),
	}
	t.Cleanup(a.close)
	return a
}

func TestExecuteVersion(t *testing.T) {
	assert.NoError(t, execute([]string{"version"}))
}

func TestExecuteHelp(t *testing.T) {
	assert.NoError(t, execute([]string{"-h"}))
}

func TestExecuteValidateNeedsDir(t *testing.T) {
	assert.Error(t, execute([]string{"validate"}))
}

func TestExecuteValidate(t *testing.T) {
	assert.NoError(t, execute([]string{"validate", t.TempDir()}))
}

func TestAppCloseRunsClosersInReverse(t *testing.T) {
	a := testApp(t)
	var order []int
	a.onClose(func() { order = append(order, 1) })
	a.onClose(func() { order = append(order, 2) })
	a.close()
	assert.Equal(t, []int{2, 1}, order)

	a.close()
	assert.Equal(t, []int{2, 1}, order)
}
