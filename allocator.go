// allocator.go implements the allocator (spec.md §4.3): decides, once per
// loop iteration before the writer phase runs, how much newly read data each
// idle sink is responsible for.
package teefan

// allocate chooses pos_to_write for each sink. ready reports, per sink
// index, whether the multiplexer selected that sink's descriptor writable
// this iteration. In copy mode every sink always sees the full input; in
// scatter mode only ready, active, drained sinks receive new work.
func allocate(mode Mode, pool *blockPool, t *sinkTable, ready []bool, sourcePosRead int64) error {
	switch mode {
	case ModeCopy:
		for i := range t.sinks {
			t.sinks[i].posToWrite = sourcePosRead
		}
		return nil
	case ModeScatter:
		return allocateScatter(pool, t, ready, sourcePosRead, false)
	case ModeScatterLines:
		return allocateScatter(pool, t, ready, sourcePosRead, true)
	default:
		return nil
	}
}

// allocateScatter implements spec.md §4.3's scatter mode, including the
// line-aligned variant when lineAligned is set.
func allocateScatter(pool *blockPool, t *sinkTable, ready []bool, sourcePosRead int64, lineAligned bool) error {
	posAssigned := t.maxPosToWrite()

	availableSinks := 0
	for i := range t.sinks {
		if isDrainedReady(t, i, ready) {
			availableSinks++
		}
	}
	if availableSinks == 0 {
		return nil
	}

	availableData := sourcePosRead - posAssigned
	dataPerSink := availableData / int64(availableSinks)
	remainder := availableData % int64(availableSinks)

	first := true
	for i := range t.sinks {
		if !isDrainedReady(t, i, ready) {
			continue
		}
		share := dataPerSink
		if first {
			share += remainder
			first = false
		}

		s := &t.sinks[i]
		s.posWritten = posAssigned

		if !lineAligned {
			posAssigned += share
			s.posToWrite = posAssigned
			continue
		}

		newPos, deferred, fatal := lineAlignBoundary(pool, posAssigned, share, sourcePosRead)
		if fatal {
			return &ProtocolError{Sink: s.name, Message: "no newline found within sink's share; increase block size with -b"}
		}
		if deferred {
			s.posToWrite = posAssigned // no allocation; wait for more input
			return nil
		}
		posAssigned = newPos
		s.posToWrite = posAssigned
	}
	return nil
}

func isDrainedReady(t *sinkTable, i int, ready []bool) bool {
	s := &t.sinks[i]
	return s.active && s.drained() && i < len(ready) && ready[i]
}

// lineAlignBoundary moves a tentative share boundary to land immediately
// after a newline, choosing the dense or sparse regime based on how much
// unassigned data remains (spec.md §4.3). fatal reports the dense regime's
// protocol violation; deferred reports the sparse regime's "need more
// input" outcome — both leave newPos unused.
func lineAlignBoundary(pool *blockPool, posAssigned, share, sourcePosRead int64) (newPos int64, deferred bool, fatal bool) {
	availableData := sourcePosRead - posAssigned
	blockSize := int64(pool.blockSize)

	if availableData > blockSize/2 {
		// Dense regime: scan backward from a tentative cut for a newline.
		tentative := posAssigned + share - 1
		for pos := tentative; pos >= posAssigned; pos-- {
			if pool.byteAt(pos) == '\n' {
				return pos + 1, false, false
			}
		}
		return 0, false, true
	}

	// Sparse regime: scan forward, tracking the last newline seen.
	lastNewline := int64(-1)
	haveNewline := false
	for pos := posAssigned; pos < sourcePosRead; pos++ {
		if pool.byteAt(pos) != '\n' {
			continue
		}
		haveNewline = true
		lastNewline = pos
		if pos-posAssigned+1 > share {
			return pos + 1, false, false
		}
	}
	if haveNewline {
		return lastNewline + 1, false, false
	}
	return 0, true, false
}
