package validate

import "oss.nandlabs.io/keephive/l3"

var logger = l3.Get()

// checkDiskSpace is a soft, best-effort check: a real implementation would
// compare the source tree's size against free space on the target's
// filesystem. keephive runs cross-platform and the free-space syscalls
// differ enough per OS that, absent a concrete deployment target, we log
// that the check was skipped rather than guess. It never fails validation.
func checkDiskSpace(source, target string) string {
	logger.DebugF("validate: disk space check not implemented on this platform (source=%s target=%s)", source, target)
	return ""
}
