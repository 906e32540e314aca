// Command glulx runs a Glulx game file to completion on the null host
// (stdout-only I/O, no Glk). Grounded in the teacher's RunProgram: GC is
// disabled for the duration of the hot dispatch loop and restored to the
// GOGC setting (default 100) when it ends.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"

	glulx "github.com/kamaitachi-is/glulx/vm"
)

func main() {
	seed := flag.Uint64("seed", 0, "random-number seed (0 = seed from the clock)")
	undoLimit := flag.Int("undo", 8, "number of saveundo levels to retain")
	profile := flag.Bool("profile", false, "count dispatched instructions and report on exit")
	flag.Parse()

	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: glulx [flags] <game-file.ulx>")
		os.Exit(2)
	}

	if err := run(args[0], uint32(*seed), *undoLimit, *profile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, seed uint32, undoLimit int, profile bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	img, err := glulx.LoadImage(f)
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	vm, err := glulx.NewVM(glulx.Config{
		Image:     img,
		Seed:      seed,
		UndoLimit: undoLimit,
		Profile:   profile,
	})
	if err != nil {
		return fmt.Errorf("initializing VM: %w", err)
	}

	gcPercent := 100
	if v, ok := os.LookupEnv("GOGC"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			gcPercent = n
		}
	}
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(gcPercent)

	if err := vm.Run(); err != nil {
		return fmt.Errorf("at pc=0x%x: %w", vm.PC(), err)
	}
	if profile {
		fmt.Fprintf(os.Stderr, "%d instructions dispatched\n", vm.Ticks())
	}
	return nil
}
