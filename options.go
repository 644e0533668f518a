// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package teefan

import "fmt"

// defaultBlockSize is the block size used when WithBlockSize is not given —
// large enough to amortize multiplexer wakeups, small enough that a single
// slow sink never pins an unreasonable amount of memory resident.
const defaultBlockSize = 1 << 20 // 1 MiB

// Mode selects how input bytes are routed to sinks.
type Mode int

const (
	// ModeCopy gives every sink every byte, in order — tee(1) semantics.
	ModeCopy Mode = iota
	// ModeScatter routes every byte to exactly one sink, fair-shared across
	// whichever sinks are currently drained and ready.
	ModeScatter
	// ModeScatterLines is ModeScatter with every allocation boundary moved
	// to land immediately after a newline.
	ModeScatterLines
)

// SinkTarget names one output of the engine. Name may be a filesystem path
// or "fd:<N>" to adopt a pre-existing descriptor (spec.md §6).
type SinkTarget struct {
	Name string
}

// engineOptions holds configuration options for Engine creation.
type engineOptions struct {
	blockSize int
	mode      Mode
	logger    *Logger
}

// --- Engine Options ---

// EngineOption configures an Engine instance.
type EngineOption interface {
	applyEngine(*engineOptions) error
}

// engineOptionImpl implements EngineOption.
type engineOptionImpl struct {
	applyEngineFunc func(*engineOptions) error
}

func (e *engineOptionImpl) applyEngine(opts *engineOptions) error {
	return e.applyEngineFunc(opts)
}

// WithBlockSize sets the size in bytes of each block in the buffer pool.
// Larger blocks reduce multiplexer wakeups at the cost of more memory
// resident per sink behind the slowest one; must be positive.
func WithBlockSize(n int) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		if n <= 0 {
			return fmt.Errorf("teefan: block size must be positive, got %d", n)
		}
		opts.blockSize = n
		return nil
	}}
}

// WithMode selects copy, scatter, or line-aligned scatter routing.
func WithMode(mode Mode) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		if mode != ModeCopy && mode != ModeScatter && mode != ModeScatterLines {
			return fmt.Errorf("teefan: unknown mode %d", mode)
		}
		opts.mode = mode
		return nil
	}}
}

// WithLogger overrides the structured logger used for diagnostics. Passing
// nil disables logging entirely.
func WithLogger(l *Logger) EngineOption {
	return &engineOptionImpl{func(opts *engineOptions) error {
		opts.logger = l
		return nil
	}}
}

// resolveEngineOptions applies EngineOption instances to engineOptions.
func resolveEngineOptions(opts []EngineOption) (*engineOptions, error) {
	cfg := &engineOptions{
		blockSize: defaultBlockSize,
		mode:      ModeCopy,
		logger:    defaultLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyEngine(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
