package script

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTimeout bounds a job's total run time when no
// other timeout is given.
const DefaultTimeout = 2 * time.Hour

// Command wraps a script into a single shell command that
// extracts it and runs it under an overall timeout.
func Command(script string, timeout time.Duration) string {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sum := sha256.Sum256([]byte(script))
	file := fmt.Sprintf("/tmp/job-%s.sh", hex.EncodeToString(sum[:])[:12])
	seconds := int64(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	return fmt.Sprintf(
		"echo %s | base64 -d > %s && chmod 700 %s && exec timeout %ds %s",
		base64.StdEncoding.EncodeToString([]byte(script)),
		file, file, seconds, file,
	)
}
