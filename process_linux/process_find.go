//go:build linux

package process_linux

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"memscan/process"
)

const procRoot = "/proc"

// LinuxProcessFinder looks processes up through procfs.
type LinuxProcessFinder struct{}

func NewProcessFinder() process.ProcessFinder {
	return &LinuxProcessFinder{}
}

// FindProcessByPID describes one process. A pid with no /proc entry reports
// ErrProcessUnavailable.
func (f *LinuxProcessFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	info, err := readProcessInfo(pid)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("pid %d: %w", pid, process.ErrProcessUnavailable)
	}
	return info, err
}

// FindProcessByName returns every process whose comm equals name.
func (f *LinuxProcessFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	return findProcesses(func(info *process.ProcessInfo) bool { return info.Name == name })
}

// FindProcessByNamePattern returns every process whose comm matches the regular expression.
func (f *LinuxProcessFinder) FindProcessByNamePattern(pattern string) ([]process.ProcessInfo, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	return findProcesses(func(info *process.ProcessInfo) bool { return re.MatchString(info.Name) })
}

// findProcesses walks the numeric entries of /proc in pid order. Processes
// that exit mid-walk are skipped.
func findProcesses(keep func(*process.ProcessInfo) bool) ([]process.ProcessInfo, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", procRoot, err)
	}

	var results []process.ProcessInfo
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || !entry.IsDir() {
			continue
		}
		info, err := readProcessInfo(process.ProcessID(pid))
		if err != nil {
			continue
		}
		if keep(info) {
			results = append(results, *info)
		}
	}
	return results, nil
}

// readProcessInfo collects comm, exe, cmdline and the parent pid of one process.
func readProcessInfo(pid process.ProcessID) (*process.ProcessInfo, error) {
	dir := filepath.Join(procRoot, strconv.Itoa(int(pid)))

	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return nil, fmt.Errorf("read comm of %d: %w", pid, err)
	}
	cmdline, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return nil, fmt.Errorf("read cmdline of %d: %w", pid, err)
	}

	info := &process.ProcessInfo{
		PID:     pid,
		Name:    strings.TrimSpace(string(comm)),
		Cmdline: splitCmdline(cmdline),
	}
	// kernel threads have no exe link
	info.Exe, _ = os.Readlink(filepath.Join(dir, "exe"))

	if status, err := os.ReadFile(filepath.Join(dir, "status")); err == nil {
		info.PPID = parentPID(status)
	}
	return info, nil
}

func splitCmdline(raw []byte) []string {
	raw = bytes.TrimSuffix(raw, []byte{0})
	if len(raw) == 0 {
		return nil
	}
	var args []string
	for _, arg := range bytes.Split(raw, []byte{0}) {
		args = append(args, string(arg))
	}
	return args
}

// parentPID extracts the PPid line of /proc/<pid>/status.
func parentPID(status []byte) process.ProcessID {
	for _, line := range strings.Split(string(status), "\n") {
		value, ok := strings.CutPrefix(line, "PPid:")
		if !ok {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return process.ProcessID(v)
		}
		return 0
	}
	return 0
}
