//go:build windows

package runner

import (
	"os/exec"
)

func prepareCommand(cmd *exec.Cmd) {
	// No process groups on Windows; exec.CommandContext already kills
	// the direct child on cancellation.
}
