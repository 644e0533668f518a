package teefan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkTable_OpensEveryTargetTruncated(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.out")
	require.NoError(t, os.WriteFile(a, []byte("stale content"), 0644))

	table, err := newSinkTable([]SinkTarget{{Name: a}, {Name: filepath.Join(dir, "b.out")}})
	require.NoError(t, err)
	defer table.closeAll()

	require.Len(t, table.sinks, 2)
	for i := range table.sinks {
		assert.True(t, table.sinks[i].active)
		assert.Equal(t, int64(0), table.sinks[i].posWritten)
	}

	got, err := os.ReadFile(a)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSinkTable_OpenFailureReturnsError(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.out")
	bad := filepath.Join(dir, "nonexistent-dir", "bad.out")

	_, err := newSinkTable([]SinkTarget{{Name: good}, {Name: bad}})
	assert.Error(t, err)
}

func TestSinkTable_MinActivePosWritten(t *testing.T) {
	table := &sinkTable{sinks: []sink{
		{name: "a", active: true, posWritten: 5},
		{name: "b", active: true, posWritten: 2},
		{name: "c", active: false, posWritten: 0},
	}}

	min, ok := table.minActivePosWritten()
	require.True(t, ok)
	assert.Equal(t, int64(2), min)
}

func TestSinkTable_MinActivePosWritten_NoneActive(t *testing.T) {
	table := &sinkTable{sinks: []sink{{active: false}}}
	_, ok := table.minActivePosWritten()
	assert.False(t, ok)
}

func TestSink_Drained(t *testing.T) {
	s := &sink{posWritten: 3, posToWrite: 3}
	assert.True(t, s.drained())
	s.posToWrite = 4
	assert.False(t, s.drained())
}
