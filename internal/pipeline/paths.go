package pipeline

import (
	"net/url"
	"strings"
)

// Artifact types stored per target instance.
const (
	EditSets  = "edit-sets"
	Artifacts = "artifacts"
	Trial     = "trial"
	Logs      = "logs"
)

// TargetPath is where a file of a target instance lives on
// the trainer's file API. file may be empty for the directory.
func TargetPath(host, target, instance, kind, file string) string {
	parts := []string{
		strings.TrimRight(host, "/"),
		url.PathEscape(target),
		url.PathEscape(instance),
		url.PathEscape(kind),
	}
	if file != "" {
		parts = append(parts, url.PathEscape(file))
	}
	return strings.Join(parts, "/")
}
