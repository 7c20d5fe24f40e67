//go:build windows

package pdf

import (
	"os/exec"
	"syscall"
)

// hideWindowOnWindows 避免 pdftoppm 在 Windows 上弹出控制台窗口
func hideWindowOnWindows(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: 0x08000000, // CREATE_NO_WINDOW
	}
}
