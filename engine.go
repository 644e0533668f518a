// engine.go ties the buffer pool, sink table, allocator, and multiplexer
// together into the single-threaded I/O loop (spec.md §4.4-§4.7) plus the
// shutdown and error policy (spec.md §7).
package teefan

// Engine drives one input stream to N sinks. A value is constructed once
// per process via New and run to completion with Run; there is no shared
// mutable state beyond the Engine itself, and Run must not be called from
// more than one goroutine concurrently.
type Engine struct {
	inputFD       int
	inputRegular  bool
	reachedEOF    bool
	sourcePosRead int64

	pool   *blockPool
	sinks  *sinkTable
	mode   Mode
	logger *Logger

	poller fastPoller

	inputReady   bool
	sinkReady    []bool
	inputWatched bool
}

// New opens the input and every sink, and prepares an Engine ready for Run.
// input is a filesystem path, "-"/"" for standard input, or "fd:<N>" to
// adopt a pre-existing descriptor; sinks are opened in the given order.
func New(input string, sinks []SinkTarget, opts ...EngineOption) (*Engine, error) {
	cfg, err := resolveEngineOptions(opts)
	if err != nil {
		return nil, err
	}

	inputFD, err := openInputFD(input)
	if err != nil {
		return nil, err
	}
	if err := setNonblock(inputFD); err != nil {
		_ = closeFD(inputFD)
		return nil, err
	}
	inputRegular, err := isRegularFile(inputFD)
	if err != nil {
		_ = closeFD(inputFD)
		return nil, err
	}

	table, err := newSinkTable(sinks)
	if err != nil {
		_ = closeFD(inputFD)
		return nil, err
	}

	return &Engine{
		inputFD:      inputFD,
		inputRegular: inputRegular,
		pool:         newBlockPool(cfg.blockSize),
		sinks:        table,
		mode:         cfg.mode,
		logger:       cfg.logger,
		sinkReady:    make([]bool, len(table.sinks)),
	}, nil
}

// Run executes the engine's I/O loop to completion. It returns nil on clean
// end-of-input with every sink's writes drained, or once every sink has gone
// inactive; otherwise it returns an error — *FatalError or *ProtocolError —
// describing why the engine aborted early.
func (e *Engine) Run() error {
	if err := e.poller.init(); err != nil {
		return newFatalError("poller", err)
	}
	defer func() { _ = e.poller.close() }()
	defer e.closeDescriptors()

	if err := e.registerDescriptors(); err != nil {
		return err
	}

	for {
		if err := e.updateReadiness(); err != nil {
			return err
		}

		inputWanted := !e.reachedEOF
		anySinkWanted := false
		for i := range e.sinks.sinks {
			s := &e.sinks.sinks[i]
			if s.active && s.posWritten < e.sourcePosRead {
				anySinkWanted = true
				break
			}
		}

		if e.reachedEOF && !anySinkWanted {
			return nil
		}
		if !e.sinks.anyActive() {
			logAllSinksInactive(e.logger, e.sourcePosRead)
			return nil
		}

		// Regular-file descriptors are never registered with the
		// multiplexer (epoll/kqueue reject them); they are always ready.
		e.inputReady = e.inputRegular
		needPoll := !e.inputRegular && inputWanted
		for i := range e.sinkReady {
			s := &e.sinks.sinks[i]
			e.sinkReady[i] = s.regular
			if !s.regular && s.active && s.posWritten < e.sourcePosRead {
				needPoll = true
			}
		}

		if needPoll {
			if _, err := e.poller.pollIO(-1); err != nil {
				return newFatalError("poller", err)
			}
		}

		wrote, err := e.writerPhase()
		if err != nil {
			return err
		}
		if wrote {
			continue // writer-before-reader backpressure rule (spec.md §4.4)
		}

		if inputWanted && e.inputReady {
			if err := e.readerPhase(); err != nil {
				return err
			}
		}
	}
}

// registerDescriptors tells the multiplexer about the input and every sink,
// with no interest yet — updateReadiness fills that in every iteration.
// Regular-file descriptors are deliberately left unregistered: epoll and
// kqueue both refuse to watch them (see isRegularFile), and they have no
// need of a wakeup anyway, since they are always ready.
func (e *Engine) registerDescriptors() error {
	if !e.inputRegular {
		if err := e.poller.registerFD(e.inputFD, 0, func(ev ioEvents) {
			if ev&eventRead != 0 {
				e.inputReady = true
			}
		}); err != nil {
			return newFatalError("input", err)
		}
		e.inputWatched = true
	}

	for i := range e.sinks.sinks {
		s := &e.sinks.sinks[i]
		if s.regular {
			continue
		}
		idx := i
		if err := e.poller.registerFD(s.fd, 0, func(ev ioEvents) {
			if ev&eventWrite != 0 {
				e.sinkReady[idx] = true
			}
		}); err != nil {
			return newFatalError(s.name, err)
		}
	}
	return nil
}

// updateReadiness builds the readiness request for this iteration (spec.md
// §4.4 step 1): the input is requested readable iff EOF has not been seen;
// each sink is requested writable iff active with pending bytes. Regular
// descriptors are skipped — they were never registered.
func (e *Engine) updateReadiness() error {
	if !e.inputRegular {
		inputWant := ioEvents(0)
		if !e.reachedEOF {
			inputWant = eventRead
		}
		if err := e.poller.modifyFD(e.inputFD, inputWant); err != nil {
			return newFatalError("input", err)
		}
	}

	for i := range e.sinks.sinks {
		s := &e.sinks.sinks[i]
		if s.regular {
			continue
		}
		want := ioEvents(0)
		if s.active && s.posWritten < e.sourcePosRead {
			want = eventWrite
		}
		if err := e.poller.modifyFD(s.fd, want); err != nil {
			return newFatalError(s.name, err)
		}
	}
	return nil
}

// writerPhase runs the allocator and then attempts one write per sink the
// multiplexer reported writable (spec.md §4.5). It returns whether any byte
// was written, which governs the writer-before-reader rule in Run.
func (e *Engine) writerPhase() (bool, error) {
	if err := allocate(e.mode, e.pool, e.sinks, e.sinkReady, e.sourcePosRead); err != nil {
		logFatal(e.logger, "allocator", err)
		return false, err
	}

	wrote := false
	for i := range e.sinks.sinks {
		s := &e.sinks.sinks[i]
		if !s.active || !e.sinkReady[i] || s.posWritten >= s.posToWrite {
			continue
		}

		buf := e.pool.sinkBuffer(s)
		n, err := writeFD(s.fd, buf)
		if err != nil {
			if isEAGAIN(err) {
				continue
			}
			if isEPIPE(err) {
				s.active = false
				logSinkDeactivated(e.logger, s.name, s.posWritten)
				continue
			}
			logFatal(e.logger, s.name, err)
			return wrote, newFatalError(s.name, err)
		}
		if n > 0 {
			s.posWritten += int64(n)
			wrote = true
		}
	}

	minPos, ok := e.sinks.minActivePosWritten()
	if !ok {
		minPos = e.sourcePosRead
	}
	e.pool.free(minPos)

	return wrote, nil
}

// readerPhase issues one read into the buffer pool at source_pos_read
// (spec.md §4.6). Partial reads are fine; the loop comes back for more.
func (e *Engine) readerPhase() error {
	buf := e.pool.sourceBuffer(e.sourcePosRead)
	n, err := readFD(e.inputFD, buf)
	if err != nil {
		if isEAGAIN(err) {
			return nil
		}
		logFatal(e.logger, "input", err)
		return newFatalError("input", err)
	}
	if n == 0 {
		e.reachedEOF = true
		return nil
	}
	e.sourcePosRead += int64(n)
	return nil
}

// closeDescriptors closes the input and every sink descriptor on the way out
// of Run, regardless of how the loop ended.
func (e *Engine) closeDescriptors() {
	if e.inputWatched {
		_ = e.poller.unregisterFD(e.inputFD)
	}
	_ = closeFD(e.inputFD)
	for i := range e.sinks.sinks {
		_ = closeFD(e.sinks.sinks[i].fd)
	}
}
