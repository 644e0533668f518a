package teefan

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feederFD returns an inherited-descriptor target string for the read end of
// a pipe, after writing the given bytes and closing the write end so the
// engine observes a clean end-of-input.
func feederFD(t *testing.T, data []byte) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	go func() {
		_, _ = w.Write(data)
		_ = w.Close()
	}()

	return fmt.Sprintf("fd:%d", int(r.Fd()))
}

func TestEngine_CopyModeSmallInput(t *testing.T) {
	dir := t.TempDir()
	sinkPaths := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c")}
	sinks := make([]SinkTarget, len(sinkPaths))
	for i, p := range sinkPaths {
		sinks[i] = SinkTarget{Name: p}
	}

	input := feederFD(t, []byte("hello\n"))

	eng, err := New(input, sinks, WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, eng.Run())

	for _, p := range sinkPaths {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(got))
	}
}

func TestEngine_ScatterModeExactDivisibility(t *testing.T) {
	dir := t.TempDir()
	sinkPaths := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b"), filepath.Join(dir, "c")}
	sinks := make([]SinkTarget, len(sinkPaths))
	for i, p := range sinkPaths {
		sinks[i] = SinkTarget{Name: p}
	}

	input := feederFD(t, []byte("ABCDEFGHIJKL"))

	eng, err := New(input, sinks, WithMode(ModeScatter), WithBlockSize(16), WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, eng.Run())

	var total string
	for _, p := range sinkPaths {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		total += string(got)
	}
	assert.Equal(t, "ABCDEFGHIJKL", total)
}

func TestEngine_LineAlignedScatterSparseRegime(t *testing.T) {
	dir := t.TempDir()
	sinkPaths := []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}
	sinks := make([]SinkTarget, len(sinkPaths))
	for i, p := range sinkPaths {
		sinks[i] = SinkTarget{Name: p}
	}

	input := feederFD(t, []byte("a\nbb\nccc\ndddd\n"))

	eng, err := New(input, sinks, WithMode(ModeScatterLines), WithBlockSize(1<<20), WithLogger(nil))
	require.NoError(t, err)
	require.NoError(t, eng.Run())

	for _, p := range sinkPaths {
		got, err := os.ReadFile(p)
		require.NoError(t, err)
		if len(got) > 0 {
			assert.Equal(t, byte('\n'), got[len(got)-1])
		}
	}
}

func TestEngine_BrokenPipeMidStreamIsolatesOneSink(t *testing.T) {
	dir := t.TempDir()
	full0 := filepath.Join(dir, "full0")
	full2 := filepath.Join(dir, "full2")

	r1, w1, err := os.Pipe()
	require.NoError(t, err)

	data := make([]byte, 1<<20)
	for i := range data {
		data[i] = byte(i)
	}

	input := feederFD(t, data)

	sinks := []SinkTarget{
		{Name: full0},
		{Name: fmt.Sprintf("fd:%d", int(w1.Fd()))},
		{Name: full2},
	}

	// Reader goroutine for sink 1 reads 4096 bytes then closes, producing
	// EPIPE on the engine's next write to that sink.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 4096)
		_, _ = r1.Read(buf)
		_ = r1.Close()
	}()

	eng, err := New(input, sinks, WithLogger(nil))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run() }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish in time")
	}
	<-readDone

	got0, err := os.ReadFile(full0)
	require.NoError(t, err)
	assert.Len(t, got0, len(data))
	assert.Equal(t, data, got0)

	got2, err := os.ReadFile(full2)
	require.NoError(t, err)
	assert.Equal(t, data, got2)
}

func TestEngine_AllSinksInactiveEndsCleanly(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	sinkR, sinkW, err := os.Pipe()
	require.NoError(t, err)
	_ = sinkR.Close() // immediately broken

	input := fmt.Sprintf("fd:%d", int(r.Fd()))
	sinks := []SinkTarget{{Name: fmt.Sprintf("fd:%d", int(sinkW.Fd()))}}

	go func() {
		_, _ = w.Write([]byte("some bytes that will never be consumed"))
	}()

	eng, err := New(input, sinks, WithLogger(nil))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Run() }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not finish after its only sink broke")
	}
}
