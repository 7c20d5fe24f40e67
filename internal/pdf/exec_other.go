//go:build !windows

package pdf

import "os/exec"

// hideWindowOnWindows 非 Windows 平台无需处理
func hideWindowOnWindows(cmd *exec.Cmd) {}
