package orchestrator

import (
	"os/exec"
)

// runHealth executes the project health command set in the main repository
// checkout. Any non-zero exit means "red master"; the failing command's
// combined output is returned for diagnostics.
func (o *Orchestrator) runHealth() (bool, string) {
	for _, cmdline := range o.healthCmds {
		if len(cmdline) == 0 {
			continue
		}
		cmd := exec.Command(cmdline[0], cmdline[1:]...)
		cmd.Dir = o.repoDir
		out, err := cmd.CombinedOutput()
		if err != nil {
			return false, string(out)
		}
	}
	return true, ""
}
