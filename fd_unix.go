//go:build linux || darwin

package teefan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor.
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// isEPIPE reports whether err is the broken-pipe condition spec.md §4.5
// says must deactivate a sink rather than abort the engine.
func isEPIPE(err error) bool {
	return errors.Is(err, unix.EPIPE)
}

// isEAGAIN reports whether err means "would block" on a non-blocking fd —
// a spurious readiness notification, not a real error.
func isEAGAIN(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// openInputFD opens the descriptor teefan reads from. A target of "-" or ""
// means standard input; "fd:<N>" accepts a pre-existing descriptor from the
// environment the engine is embedded in (spec.md §6).
func openInputFD(target string) (int, error) {
	if target == "" || target == "-" {
		return unix.Dup(0)
	}
	if fd, ok := parseInheritedFD(target); ok {
		return unix.Dup(fd)
	}
	fd, err := unix.Open(target, unix.O_RDONLY, 0)
	if err != nil {
		return -1, fmt.Errorf("open input %q: %w", target, err)
	}
	return fd, nil
}

// openSinkFD opens (or accepts) a descriptor for writing. Named paths are
// created if missing and truncated if present, with permissive default
// permissions, per spec.md §6. A target of the form "fd:<N>" instead adopts
// a pre-existing descriptor without the engine distinguishing the two.
func openSinkFD(target string) (int, error) {
	if fd, ok := parseInheritedFD(target); ok {
		return unix.Dup(fd)
	}
	fd, err := unix.Open(target, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0644)
	if err != nil {
		return -1, fmt.Errorf("open sink %q: %w", target, err)
	}
	return fd, nil
}

func parseInheritedFD(target string) (int, bool) {
	rest, ok := strings.CutPrefix(target, "fd:")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// setNonblock puts fd into non-blocking mode so reads/writes issued after
// the multiplexer reports readiness never stall the single engine thread.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// isRegularFile reports whether fd refers to a regular file. epoll and
// kqueue both refuse to watch regular files (epoll_ctl(ADD) on one fails
// with EPERM); regular files are always ready for I/O immediately, the way
// select(2)/poll(2) already report them, so the engine must never hand one
// to the multiplexer and instead treat it as unconditionally ready.
func isRegularFile(fd int) (bool, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return false, err
	}
	return st.Mode&unix.S_IFMT == unix.S_IFREG, nil
}
