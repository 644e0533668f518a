// Package teefan — multiplexer registration.
//
// # I/O Registration
//
// The engine multiplexes readiness for the input descriptor and every sink
// descriptor using platform-native mechanisms:
//   - Linux: epoll
//   - Darwin/BSD: kqueue
//
// See poller_linux.go and poller_darwin.go for platform-specific
// implementations of fastPoller.
//
// # Usage
//
//	p.registerFD(fd, eventRead, func(events ioEvents) {
//	    // mark the descriptor ready; acted on from the main loop
//	})
//
// # Safety
//
// Always call unregisterFD before closing a file descriptor to prevent
// stale event delivery due to FD recycling.
//
// # Regular files
//
// Neither epoll nor kqueue can watch a regular-file descriptor
// (registration fails with EPERM); engine.go never hands one to this
// poller, treating it as unconditionally ready instead (see
// isRegularFile in fd_unix.go).
package teefan

// Note: registerFD, unregisterFD, modifyFD, and pollIO are implemented
// in platform-specific files:
//   - poller_linux.go (epoll)
//   - poller_darwin.go (kqueue)
