//go:build linux

package teefan

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table. teefan only ever registers the
// input descriptor plus one descriptor per sink, so this comfortably covers
// any realistic fan-out width.
const maxFDs = 65536

// ioEvents represents the type of I/O readiness to monitor on a descriptor.
type ioEvents uint32

const (
	// eventRead indicates the file descriptor is ready for reading.
	eventRead ioEvents = 1 << iota
	// eventWrite indicates the file descriptor is ready for writing.
	eventWrite
	// eventError indicates an error condition on the file descriptor.
	eventError
	// eventHangup indicates the peer closed its end of the connection.
	eventHangup
)

var (
	errFDOutOfRange        = errors.New("teefan: fd out of range (max 65535)")
	errFDAlreadyRegistered = errors.New("teefan: fd already registered")
	errFDNotRegistered     = errors.New("teefan: fd not registered")
	errPollerClosed        = errors.New("teefan: poller closed")
)

// ioCallback is invoked with the readiness bits observed for a registered fd.
type ioCallback func(ioEvents)

// fdInfo stores per-FD callback information.
type fdInfo struct {
	callback ioCallback
	events   ioEvents
	active   bool
}

// fastPoller multiplexes readiness for the engine's descriptors using epoll.
//
// Unlike a general-purpose reactor, teefan drives fastPoller from a single
// goroutine: Run calls modifyFD every iteration to describe exactly what it
// wants (input readable iff not at EOF, each sink writable iff active and
// has pending bytes) and then blocks in pollIO until something changes. The
// mutex below exists because fdInfo is also read from dispatchEvents; there
// is never concurrent registration in practice, but the type stays safe if
// that changes.
type fastPoller struct {
	epfd     int32
	version  atomic.Uint64
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdInfo
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// init initializes the epoll instance.
func (p *fastPoller) init() error {
	if p.closed.Load() {
		return errPollerClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = int32(epfd)
	return nil
}

// close closes the epoll instance.
func (p *fastPoller) close() error {
	p.closed.Store(true)
	if p.epfd > 0 {
		return unix.Close(int(p.epfd))
	}
	return nil
}

// registerFD registers a file descriptor for I/O event monitoring.
func (p *fastPoller) registerFD(fd int, events ioEvents, cb ioCallback) error {
	if p.closed.Load() {
		return errPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.fdMu.Lock()
		p.fds[fd] = fdInfo{}
		p.fdMu.Unlock()
		return err
	}
	return nil
}

// unregisterFD removes a file descriptor from monitoring.
func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	p.fds[fd] = fdInfo{}
	p.version.Add(1)
	p.fdMu.Unlock()

	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
}

// modifyFD updates the events being monitored for a file descriptor. It is
// a no-op when the requested mask already matches, so Run can call it
// unconditionally every iteration without extra bookkeeping.
func (p *fastPoller) modifyFD(fd int, events ioEvents) error {
	if fd < 0 || fd >= maxFDs {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	if p.fds[fd].events == events {
		p.fdMu.Unlock()
		return nil
	}
	p.fds[fd].events = events
	p.version.Add(1)
	p.fdMu.Unlock()

	ev := &unix.EpollEvent{
		Events: eventsToEpoll(events),
		Fd:     int32(fd),
	}
	return unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev)
}

// pollIO blocks until at least one registered descriptor is ready, or
// timeoutMs elapses. A negative timeout blocks indefinitely — the mode Run
// always uses, since cancellation is external per spec.md §5. Returns the
// number of descriptors dispatched.
func (p *fastPoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, errPollerClosed
	}

	v := p.version.Load()

	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	if p.version.Load() != v {
		// Registrations changed mid-wait; the results may reference stale
		// fds. Discard and let the caller re-poll with the current set.
		return 0, nil
	}

	p.dispatchEvents(n)
	return n, nil
}

// dispatchEvents executes callbacks inline, outside the fd table lock.
func (p *fastPoller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs {
			continue
		}

		p.fdMu.RLock()
		info := p.fds[fd]
		p.fdMu.RUnlock()

		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
}

func eventsToEpoll(events ioEvents) uint32 {
	var e uint32
	if events&eventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&eventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(epollEvents uint32) ioEvents {
	var events ioEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= eventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= eventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= eventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= eventHangup
	}
	return events
}
