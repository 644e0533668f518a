// Command teefan copies standard input to one or more output sinks, in
// copy or scatter mode, the way tee(1) copies to files.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-teefan/teefan"
)

const usage = `teefan - fan out standard input to one or more sinks

USAGE:
    teefan [OPTIONS] SINK...

OPTIONS:
`

func main() {
	cfg, sinks := parseFlags()

	// Suppress SIGPIPE so a broken downstream surfaces as an EPIPE write
	// error instead of killing the process (spec.md §5, §9).
	signal.Ignore(syscall.SIGPIPE)

	if err := run(cfg, sinks); err != nil {
		fmt.Fprintf(os.Stderr, "teefan: %v\n", err)
		os.Exit(1)
	}
}

type config struct {
	blockSize   int
	scatter     bool
	lineAligned bool
}

func parseFlags() (config, []teefan.SinkTarget) {
	var cfg config
	flag.IntVar(&cfg.blockSize, "b", 1<<20, "block size in bytes")
	flag.BoolVar(&cfg.scatter, "s", false, "enable scatter mode")
	flag.BoolVar(&cfg.lineAligned, "l", false, "enable line-aligned scatter (requires -s)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	sinks := make([]teefan.SinkTarget, 0, flag.NArg())
	for _, arg := range flag.Args() {
		sinks = append(sinks, teefan.SinkTarget{Name: arg})
	}
	return cfg, sinks
}

func run(cfg config, sinks []teefan.SinkTarget) error {
	if len(sinks) == 0 {
		flag.Usage()
		return fmt.Errorf("at least one sink is required")
	}

	mode := teefan.ModeCopy
	switch {
	case cfg.scatter && cfg.lineAligned:
		mode = teefan.ModeScatterLines
	case cfg.scatter:
		mode = teefan.ModeScatter
	}

	eng, err := teefan.New("-", sinks,
		teefan.WithBlockSize(cfg.blockSize),
		teefan.WithMode(mode),
	)
	if err != nil {
		return err
	}
	return eng.Run()
}
