//go:build !linux

package main

import (
	"fmt"
	"runtime"

	"memscan/process"
)

func attachPID(process.ProcessID) (process.Process, string, error) {
	return nil, "", fmt.Errorf("live processes are not supported on %s, use --from", runtime.GOOS)
}

func attachName(string) (process.Process, string, error) {
	return nil, "", fmt.Errorf("live processes are not supported on %s, use --from", runtime.GOOS)
}
