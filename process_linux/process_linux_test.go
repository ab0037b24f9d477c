//go:build linux

package process_linux

import (
	"encoding/binary"
	"errors"
	"os"
	"testing"
	"unsafe"

	"memscan/process"
)

var selfTestBuffer [64]byte

func selfPIDForTest() process.ProcessID {
	return process.ProcessID(os.Getpid())
}

func TestReadWriteSelf(t *testing.T) {
	proc, err := OpenSelf()
	if err != nil {
		t.Skipf("cannot attach to self: %v", err)
	}
	defer proc.Close()

	if proc.GetPID() != selfPIDForTest() {
		t.Fatalf("GetPID() = %d, want %d", proc.GetPID(), selfPIDForTest())
	}

	buf := selfTestBuffer[:]
	binary.LittleEndian.PutUint32(buf, 1234)
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))

	if err := proc.UpdateMemoryMap(); err != nil {
		t.Fatalf("UpdateMemoryMap() error = %v", err)
	}

	got, err := proc.ReadMemory(addr, 4)
	if err != nil {
		if errors.Is(err, process.ErrRegionUnreadable) {
			t.Skipf("process_vm_readv not permitted here: %v", err)
		}
		t.Fatalf("ReadMemory() error = %v", err)
	}
	if v := binary.LittleEndian.Uint32(got); v != 1234 {
		t.Errorf("ReadMemory() = %d, want 1234", v)
	}

	if err := proc.WriteMemory(addr, []byte{0x2A, 0, 0, 0}); err != nil {
		t.Fatalf("WriteMemory() error = %v", err)
	}
	if v := binary.LittleEndian.Uint32(buf); v != 42 {
		t.Errorf("buffer after write = %d, want 42", v)
	}
}

func TestFindSelfByPID(t *testing.T) {
	info, err := NewProcessFinder().FindProcessByPID(selfPIDForTest())
	if err != nil {
		t.Fatalf("FindProcessByPID() error = %v", err)
	}
	if info.Name == "" {
		t.Errorf("process name is empty")
	}
}

func TestReadMemoryNotOpen(t *testing.T) {
	proc := New()
	if _, err := proc.ReadMemory(0x10000, 4); !errors.Is(err, process.ErrProcessNotOpen) {
		t.Errorf("ReadMemory() error = %v, want ErrProcessNotOpen", err)
	}
}

func TestFindMissingPID(t *testing.T) {
	// pid_max never exceeds 2^22
	if _, err := NewProcessFinder().FindProcessByPID(1 << 23); !process.IsUnavailable(err) {
		t.Errorf("FindProcessByPID(missing) error = %v, want unavailable", err)
	}
}

func TestProcfsParsing(t *testing.T) {
	t.Run("cmdline", func(t *testing.T) {
		got := splitCmdline([]byte("game\x00--windowed\x00\x00-x\x00"))
		want := []string{"game", "--windowed", "", "-x"}
		if len(got) != len(want) {
			t.Fatalf("splitCmdline() = %q, want %q", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("arg %d = %q, want %q", i, got[i], want[i])
			}
		}
		if splitCmdline(nil) != nil {
			t.Errorf("empty cmdline should give no args")
		}
	})

	t.Run("ppid", func(t *testing.T) {
		status := []byte("Name:\tgame\nState:\tS (sleeping)\nPid:\t42\nPPid:\t7\n")
		if got := parentPID(status); got != 7 {
			t.Errorf("parentPID() = %d, want 7", got)
		}
		if got := parentPID([]byte("Name:\tgame\n")); got != 0 {
			t.Errorf("parentPID(no PPid) = %d, want 0", got)
		}
	})
}
