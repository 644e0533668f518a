// sink.go implements the sink table (spec.md §4.2): one fixed record per
// output, tracking the committed write cursor, the allocated-up-to cursor,
// and whether the sink is still accepting writes. Grounded on the sink
// lifecycle (active flag flips false on a terminal write error, delivery to
// the rest continues) used by the corpus's channel-based fan-out writer.
package teefan

// sink is one output record. name is used only for diagnostics; fd is the
// raw descriptor the engine writes to directly, bypassing os.File so the
// engine's own multiplexer registration is the only poller watching it.
// regular marks a descriptor the multiplexer must never be asked to watch
// (see isRegularFile) — the engine instead treats it as always write-ready.
type sink struct {
	name       string
	fd         int
	posWritten int64
	posToWrite int64
	active     bool
	regular    bool
}

// drained reports whether the sink has no pending bytes to write.
func (s *sink) drained() bool {
	return s.posWritten == s.posToWrite
}

// sinkTable holds every sink for the lifetime of the engine. Fixed-size:
// sinks are never added or removed after construction, only deactivated.
type sinkTable struct {
	sinks []sink
}

// newSinkTable opens one descriptor per target, in order, truncating any
// existing file (spec.md §6). On any open failure every previously opened
// descriptor is closed before returning the error.
func newSinkTable(targets []SinkTarget) (*sinkTable, error) {
	t := &sinkTable{sinks: make([]sink, 0, len(targets))}
	for _, target := range targets {
		fd, err := openSinkFD(target.Name)
		if err != nil {
			t.closeAll()
			return nil, err
		}
		if err := setNonblock(fd); err != nil {
			_ = closeFD(fd)
			t.closeAll()
			return nil, err
		}
		regular, err := isRegularFile(fd)
		if err != nil {
			_ = closeFD(fd)
			t.closeAll()
			return nil, err
		}
		t.sinks = append(t.sinks, sink{name: target.Name, fd: fd, active: true, regular: regular})
	}
	return t, nil
}

func (t *sinkTable) closeAll() {
	for i := range t.sinks {
		_ = closeFD(t.sinks[i].fd)
	}
}

// anyActive reports whether at least one sink is still accepting writes.
func (t *sinkTable) anyActive() bool {
	for i := range t.sinks {
		if t.sinks[i].active {
			return true
		}
	}
	return false
}

// minActivePosWritten returns the minimum pos_written across active sinks,
// the quantity memory_free is keyed on (spec.md §4.5). If no sink is active
// the caller should use source_pos_read instead.
func (t *sinkTable) minActivePosWritten() (int64, bool) {
	var min int64
	found := false
	for i := range t.sinks {
		if !t.sinks[i].active {
			continue
		}
		if !found || t.sinks[i].posWritten < min {
			min = t.sinks[i].posWritten
			found = true
		}
	}
	return min, found
}

// maxPosToWrite returns the high-water allocation mark across all sinks,
// i.e. pos_assigned in the allocator (spec.md §4.3 step 1).
func (t *sinkTable) maxPosToWrite() int64 {
	var max int64
	for i := range t.sinks {
		if t.sinks[i].posToWrite > max {
			max = t.sinks[i].posToWrite
		}
	}
	return max
}
