// Package teefan provides a one-to-many stream fan-out engine: a single
// input byte stream is copied (or scattered) across N output sinks without
// letting any slow or blocked sink stall the others.
//
// # Modes
//
// In copy mode every sink receives every byte, in input order, with no
// gaps — equivalent to the Unix tee(1) utility but with per-sink
// backpressure isolation. In scatter mode every byte is routed to exactly
// one sink, chosen by [Engine]'s allocator to balance load across whichever
// sinks are currently drained and ready; line-aligned scatter additionally
// guarantees that every allocation boundary falls immediately after a
// newline.
//
// # Architecture
//
// [Engine] drives a single-threaded, cooperative readiness loop built on a
// platform-native multiplexer (epoll on Linux, kqueue on Darwin — see
// poller_linux.go and poller_darwin.go). A block pool absorbs the rate
// mismatch between the input and the slowest active sink by holding
// fixed-size blocks addressed by absolute input offset; blocks are freed as
// soon as every active sink has consumed them. The only suspension point is
// the multiplexer wait — no lock is ever contended and no mutable state is
// shared across goroutines, because there is only one goroutine.
//
// # Shutdown
//
// A sink that returns EPIPE on write is isolated (deactivated) and does not
// affect delivery to the remaining sinks. Once every sink is inactive, the
// engine treats this as equivalent to end-of-input and exits cleanly. Any
// other I/O or multiplexer failure is fatal and aborts the engine.
//
// # Usage
//
//	eng, err := teefan.New("-", []teefan.SinkTarget{{Name: "a.log"}, {Name: "b.log"}},
//	    teefan.WithMode(teefan.ModeScatter),
//	    teefan.WithBlockSize(1<<20),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Run(); err != nil {
//	    log.Fatal(err)
//	}
package teefan
