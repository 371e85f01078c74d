package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const (
	maxNameLength = 50
	hashLength    = 8
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDashes   = regexp.MustCompile(`-{2,}`)
)

// Name builds a platform safe job name for one
// stage of work on one item. Names are
// deterministic for a (stage, item) pair.
func Name(stage, item string) string {
	name := sanitize(stage)
	if s := sanitize(item); s != "" {
		name = name + "-" + s
	}

	if len(name) <= maxNameLength {
		return name
	}

	sum := sha256.Sum256([]byte(name))
	prefix := strings.TrimRight(name[:maxNameLength-hashLength-1], "-")
	return prefix + "-" + hex.EncodeToString(sum[:])[:hashLength]
}

// TargetID returns a short stable identifier for
// a training target.
func TargetID(target string) string {
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:])[:16]
}

func sanitize(s string) string {
	s = invalidNameChars.ReplaceAllString(strings.ToLower(s), "-")
	s = repeatedDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
