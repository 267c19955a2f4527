package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineHappyPath(t *testing.T) {
	var seen []State
	m := NewMachine(func(s State) { seen = append(seen, s) })

	assert.Equal(t, Idle, m.Current().Kind)

	eta := 12
	require.NoError(t, m.Progress(0, nil))
	require.NoError(t, m.Progress(50, &eta))
	require.NoError(t, m.Complete("/out/clip_enhanced.mp4"))

	require.Len(t, seen, 3)
	assert.Equal(t, Processing, seen[0].Kind)
	assert.Equal(t, 50, seen[1].Progress)
	assert.Equal(t, 12, *seen[1].ETASeconds)
	assert.Equal(t, "/out/clip_enhanced.mp4", seen[2].OutputPath)
	assert.True(t, m.Current().Terminal())
}

func TestMachineRejectsSkippingProcessing(t *testing.T) {
	m := NewMachine()
	assert.Error(t, m.Complete("/out/x.mp4"))
	assert.Error(t, m.Fail("boom"))
	assert.Equal(t, Idle, m.Current().Kind)
}

func TestMachineTerminalStates(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Progress(10, nil))
	require.NoError(t, m.Fail("encoder failed"))

	assert.Error(t, m.Progress(20, nil))
	assert.Error(t, m.Complete("/out/x.mp4"))
	assert.Equal(t, "error: encoder failed", m.Current().String())

	require.NoError(t, m.Reset())
	assert.Equal(t, Idle, m.Current().Kind)
	assert.NoError(t, m.Progress(0, nil))
}

func TestMachineClampsProgress(t *testing.T) {
	m := NewMachine()
	require.NoError(t, m.Progress(140, nil))
	assert.Equal(t, 100, m.Current().Progress)
	require.NoError(t, m.Progress(-3, nil))
	assert.Equal(t, 0, m.Current().Progress)
}

func TestSubscribe(t *testing.T) {
	m := NewMachine()
	count := 0
	m.Subscribe(func(State) { count++ })
	require.NoError(t, m.Progress(1, nil))
	require.NoError(t, m.Progress(2, nil))
	assert.Equal(t, 2, count)
}

func TestStateString(t *testing.T) {
	eta := 3
	assert.Equal(t, "idle", State{}.String())
	assert.Equal(t, "processing 40%", State{Kind: Processing, Progress: 40}.String())
	assert.Equal(t, "processing 40% (eta 3s)", State{Kind: Processing, Progress: 40, ETASeconds: &eta}.String())
	assert.Equal(t, "completed: a.mp4", State{Kind: Completed, OutputPath: "a.mp4"}.String())
	assert.Equal(t, "unknown", Kind(9).String())
}
