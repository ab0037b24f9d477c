//go:build linux

package main

import (
	"memscan/process"
	"memscan/process_linux"
)

func attachPID(pid process.ProcessID) (process.Process, string, error) {
	proc, err := process_linux.NewWithPID(pid)
	if err != nil {
		return nil, "", err
	}
	name := "unknown"
	if info, err := process_linux.NewProcessFinder().FindProcessByPID(pid); err == nil {
		name = info.Name
	}
	return proc, name, nil
}

func attachName(name string) (process.Process, string, error) {
	proc, err := process_linux.OpenProcessByName(name)
	if err != nil {
		return nil, "", err
	}
	return proc, name, nil
}
