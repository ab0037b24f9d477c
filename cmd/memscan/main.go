package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memscan/engine"
	"memscan/process"
	"memscan/process_blob"
	"memscan/scan_session"
	"memscan/search"
	"memscan/value_codec"
)

func main() {
	os.Exit(run())
}

func run() int {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	nameFlag := flag.String("name", "", "Attach to the first process with this exact name")
	fromFlag := flag.String("from", "", "Scan a saved dump directory instead of a live process")
	typeFlag := flag.String("type", "i32", "Default value type (i8..u64, f32, f64, utf8, utf16, aob)")
	alignFlag := flag.Int("align", 0, "Scan alignment in bytes, 0 for the type's natural alignment")
	chunkFlag := flag.Int("chunk-kb", scan_session.DefaultChunkSize/scan_session.KiB, "Read chunk size in KiB")
	epsilonFlag := flag.Float64("epsilon", value_codec.DefaultEpsilon, "Float comparison tolerance")
	workersFlag := flag.Int("workers", 1, "Regions scanned in parallel")
	writableFlag := flag.Bool("writable", false, "Scan only writable regions")
	depthFlag := flag.Int("depth", search.DefaultSettings().MaxDepth, "Default pointer scan depth")
	offsetFlag := flag.Uint("offset", uint(search.DefaultSettings().MaxOffset), "Default pointer scan max offset")
	flag.Parse()

	vt, err := value_codec.ParseValueType(*typeFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		return 1
	}

	proc, name, err := attach(*pidFlag, *nameFlag, *fromFlag)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		flag.Usage()
		return 1
	}
	defer proc.Close()

	eng := engine.New(proc,
		engine.WithSessionOptions(
			scan_session.WithChunkSize(*chunkFlag*scan_session.KiB),
			scan_session.WithFloatEpsilon(*epsilonFlag),
			scan_session.WithWorkers(*workersFlag),
			scan_session.WithWritableOnly(*writableFlag),
		),
	)

	fmt.Printf("Attached to %s (pid %d)\n", name, proc.GetPID())

	c := newCLI(eng, os.Stdout)
	c.valueType = vt
	c.alignment = *alignFlag
	c.depth = *depthFlag
	c.maxOffset = uint32(*offsetFlag)
	c.name = name

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		for range sigs {
			if !c.cancelRunning() {
				fmt.Println("\nno scan running, type quit to exit")
			}
		}
	}()

	if err := c.loop(ctx, bufio.NewScanner(os.Stdin)); err != nil {
		fmt.Printf("Error: %v\n", err)
		return 1
	}
	return 0
}

func attach(pid int, name, from string) (process.Process, string, error) {
	switch {
	case from != "":
		dump := process_blob.NewProcessDump()
		if err := dump.Load(from); err != nil {
			return nil, "", fmt.Errorf("loading dump from %s: %w", from, err)
		}
		return dump, dump.Name, nil
	case pid != 0:
		return attachPID(process.ProcessID(pid))
	case name != "":
		return attachName(name)
	default:
		return nil, "", fmt.Errorf("one of --pid, --name or --from is required")
	}
}
