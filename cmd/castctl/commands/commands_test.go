package commands

import (
	"bytes"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go2tv.app/castbeam/internal/domain"
)

func TestControlCommandsCoverEveryAction(t *testing.T) {
	var actions []string
	for _, spec := range controlSpecs {
		actions = append(actions, spec.action)
	}
	for _, action := range domain.ControlActions {
		assert.True(t, slices.Contains(actions, action), "missing command for %s", action)
	}
}

func TestControlCommandArgs(t *testing.T) {
	for _, cmd := range controlCommands() {
		switch cmd.Name() {
		case "seek", "seek-to", "volume", "subtitles", "subtitles-size":
			require.Error(t, cmd.Args(cmd, []string{"tv"}), cmd.Name())
			require.NoError(t, cmd.Args(cmd, []string{"tv", "1"}), cmd.Name())
		default:
			require.NoError(t, cmd.Args(cmd, []string{"tv"}), cmd.Name())
			require.Error(t, cmd.Args(cmd, []string{"tv", "1"}), cmd.Name())
		}
	}
}

func TestRunControlRejectsBadValue(t *testing.T) {
	spec := controlSpec{use: "seek", action: "seek", valueArg: "seconds"}
	err := runControl(&session{}, spec, []string{"tv", "ten"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid seconds")
}

func TestPrinterPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	p.linef("%s", p.paint(ansiBold, "Living Room"))
	assert.Equal(t, "Living Room\n", buf.String())
}

func TestRootRegistersCommands(t *testing.T) {
	for _, name := range []string{"scan", "play", "status", "close", "pause", "seek-to", "subtitles-off"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
