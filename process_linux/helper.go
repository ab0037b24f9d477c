//go:build linux

package process_linux

import (
	"fmt"
	"os"

	"memscan/process"
)

// OpenProcessByName opens the first process whose name matches exactly
func OpenProcessByName(name string) (*LinuxProcess, error) {
	processes, err := NewProcessFinder().FindProcessByName(name)
	if err != nil {
		return nil, err
	}

	if len(processes) == 0 {
		return nil, fmt.Errorf("no process found with name '%s'", name)
	}

	return NewWithPID(processes[0].PID)
}

// OpenProcessByPattern opens the first process whose name matches the pattern
func OpenProcessByPattern(pattern string) (*LinuxProcess, error) {
	processes, err := NewProcessFinder().FindProcessByNamePattern(pattern)
	if err != nil {
		return nil, err
	}

	if len(processes) == 0 {
		return nil, fmt.Errorf("no process found matching pattern '%s'", pattern)
	}

	return NewWithPID(processes[0].PID)
}

// OpenSelf attaches to the calling process, mostly useful for tests.
func OpenSelf() (*LinuxProcess, error) {
	return NewWithPID(process.ProcessID(selfPID()))
}

func selfPID() int {
	return os.Getpid()
}
