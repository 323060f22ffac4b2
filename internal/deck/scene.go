package deck

import (
	"fmt"
	"strconv"
	"strings"
)

// Namespace is the scene directory every deck lives under. It is part of the
// wire format and must match on every peer.
const Namespace = "projector-plugin"

// ScenePath is a decoded /projector-plugin/<taskId>/<index> address.
type ScenePath struct {
	TaskID string
	Index  int
}

// String encodes the path in wire format.
func (p ScenePath) String() string {
	return fmt.Sprintf("/%s/%s/%d", Namespace, p.TaskID, p.Index)
}

// InNamespace reports whether a raw scene path addresses a deck page.
func InNamespace(path string) bool {
	return path == "/"+Namespace || strings.HasPrefix(path, "/"+Namespace+"/")
}

// ParseScenePath decodes a wire-format scene path. ok is false for paths
// outside the namespace or with a malformed task id or index.
func ParseScenePath(path string) (ScenePath, bool) {
	if !InNamespace(path) {
		return ScenePath{}, false
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) != 3 || parts[1] == "" {
		return ScenePath{}, false
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 1 {
		return ScenePath{}, false
	}
	return ScenePath{TaskID: parts[1], Index: index}, true
}

// SceneDir returns the directory holding one scene per page of a deck.
func SceneDir(taskID string) string {
	return "/" + Namespace + "/" + taskID
}

// PageScenes returns scene names "1".."n", one per page.
func PageScenes(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = strconv.Itoa(i + 1)
	}
	return names
}
