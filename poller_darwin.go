//go:build darwin

package teefan

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// maxFDs is the initial fd table size; it grows on demand up to maxFDLimit.
const maxFDs = 65536

// maxFDLimit is the exclusive upper bound on fd values accepted for dynamic
// growth of the fd table — generous enough for any ulimit -n a fan-out process would hit.
const maxFDLimit = 100000000

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
	errFDOutOfRange        = errors.New("teefan: fd out of range (max 99999999)")
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

// fastPoller multiplexes readiness for the engine's descriptors using
// kqueue. See poller_linux.go's fastPoller doc for how Run drives it.
type fastPoller struct {
	kq       int32
	eventBuf [256]unix.Kevent_t
	fds      []fdInfo // grows on demand, unlike the fixed array on Linux
	fdMu     sync.RWMutex
	closed   atomic.Bool
}

// init initializes the kqueue instance.
func (p *fastPoller) init() error {
	if p.closed.Load() {
		return errPollerClosed
	}
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = int32(kq)
	p.fds = make([]fdInfo, maxFDs)
	return nil
}

// close closes the kqueue instance.
func (p *fastPoller) close() error {
	p.closed.Store(true)
	if p.kq > 0 {
		return unix.Close(int(p.kq))
	}
	return nil
}

// registerFD registers a file descriptor for I/O event monitoring.
func (p *fastPoller) registerFD(fd int, events ioEvents, cb ioCallback) error {
	if p.closed.Load() {
		return errPollerClosed
	}
	if fd < 0 || fd >= maxFDLimit {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) {
		newSize := fd*2 + 1
		if newSize > maxFDLimit {
			newSize = maxFDLimit + 1
		}
		newFds := make([]fdInfo, newSize)
		copy(newFds, p.fds)
		p.fds = newFds
	}
	if p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDAlreadyRegistered
	}
	p.fds[fd] = fdInfo{callback: cb, events: events, active: true}
	p.fdMu.Unlock()

	if kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
		if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
			p.fdMu.Lock()
			p.fds[fd] = fdInfo{}
			p.fdMu.Unlock()
			return err
		}
	}
	return nil
}

// unregisterFD removes a file descriptor from monitoring.
//
// Like the epoll implementation, an in-flight dispatch may still execute a
// copied callback after unregisterFD returns; callers must not close a fd
// until the loop has observed no further activity for it.
func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	events := p.fds[fd].events
	p.fds[fd] = fdInfo{}
	p.fdMu.Unlock()

	if kevents := eventsToKevents(fd, events, unix.EV_DELETE); len(kevents) > 0 {
		_, _ = unix.Kevent(int(p.kq), kevents, nil, nil) // best effort on delete
	}
	return nil
}

// modifyFD updates the events being monitored for a file descriptor.
func (p *fastPoller) modifyFD(fd int, events ioEvents) error {
	if fd < 0 {
		return errFDOutOfRange
	}

	p.fdMu.Lock()
	if fd >= len(p.fds) || !p.fds[fd].active {
		p.fdMu.Unlock()
		return errFDNotRegistered
	}
	oldEvents := p.fds[fd].events
	if oldEvents == events {
		p.fdMu.Unlock()
		return nil
	}
	p.fds[fd].events = events
	p.fdMu.Unlock()

	if removed := oldEvents &^ events; removed != 0 {
		if kevents := eventsToKevents(fd, removed, unix.EV_DELETE); len(kevents) > 0 {
			_, _ = unix.Kevent(int(p.kq), kevents, nil, nil)
		}
	}
	if added := events &^ oldEvents; added != 0 {
		if kevents := eventsToKevents(fd, added, unix.EV_ADD|unix.EV_ENABLE); len(kevents) > 0 {
			if _, err := unix.Kevent(int(p.kq), kevents, nil, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// pollIO blocks until at least one registered descriptor is ready, or
// timeoutMs elapses. A negative timeout blocks indefinitely.
func (p *fastPoller) pollIO(timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, errPollerClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(int(p.kq), nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	p.dispatchEvents(n)
	return n, nil
}

// dispatchEvents executes callbacks inline, outside the fd table lock.
func (p *fastPoller) dispatchEvents(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 {
			continue
		}

		p.fdMu.RLock()
		var info fdInfo
		if fd < len(p.fds) {
			info = p.fds[fd]
		}
		p.fdMu.RUnlock()

		if info.active && info.callback != nil {
			info.callback(keventToEvents(&p.eventBuf[i]))
		}
	}
}

func eventsToKevents(fd int, events ioEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&eventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&eventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) ioEvents {
	var events ioEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= eventRead
	case unix.EVFILT_WRITE:
		events |= eventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= eventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= eventHangup
	}
	return events
}
