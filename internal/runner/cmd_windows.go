//go:build windows

package runner

import (
	"fmt"
	"os"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SetupCommand configures Windows-specific command attributes. Windows
// has no process groups in the Unix sense, so nothing is needed here;
// KillProcessGroup walks the process tree instead.
func SetupCommand(_ *exec.Cmd) {}

// KillProcessGroup kills the child and its entire subprocess tree. The
// signal is ignored on Windows; termination is always forceful.
func KillProcessGroup(cmd *exec.Cmd, _ os.Signal) error {
	if cmd != nil && cmd.Process != nil {
		return killProcessTree(uint32(cmd.Process.Pid))
	}
	return nil
}

// killProcessTree kills a process and its subprocess tree, children
// first, via a Toolhelp32 snapshot.
func killProcessTree(pid uint32) error {
	var entry struct {
		Size              uint32
		CntUsage          uint32
		ProcessID         uint32
		DefaultHeapID     uintptr
		ModuleID          uint32
		Threads           uint32
		ParentProcessID   uint32
		PriorityClassBase int32
		Flags             uint32
		ExeFile           [windows.MAX_PATH]uint16
	}
	snapshot, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return fmt.Errorf("CreateToolhelp32Snapshot failed: %w", err)
	}
	defer windows.CloseHandle(snapshot)
	entry.Size = uint32(unsafe.Sizeof(entry))

	if err := windows.Process32First(snapshot, (*windows.ProcessEntry32)(unsafe.Pointer(&entry))); err != nil {
		return err
	}

	for {
		if entry.ParentProcessID == pid {
			_ = killProcessTree(entry.ProcessID)
		}
		if err := windows.Process32Next(snapshot, (*windows.ProcessEntry32)(unsafe.Pointer(&entry))); err != nil {
			break
		}
	}

	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err == nil {
		defer windows.CloseHandle(h)
		_ = windows.TerminateProcess(h, 1)
	}

	return nil
}
