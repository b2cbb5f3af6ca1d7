// Package target resolves user-visible platform paths
// (<project>/<root>/<rel>) into object paths, locates the deepest existing
// folder and creates missing folder chains.
package target

import (
	"path"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pilotdata/pilotcli/internal/clierr"
)

// RootKind is the second segment of a platform path.
type RootKind string

const (
	RootUsers  RootKind = "users"
	RootShared RootKind = "shared"
	RootTrash  RootKind = "trash"
)

// reservedNames can never be created as single-segment folders.
var reservedNames = map[string]bool{
	"users":  true,
	"shared": true,
	"trash":  true,
	"root":   true,
}

var segmentRE = regexp.MustCompile(`^[^/:?.\\*<>|"']{1,100}$`)

// Target is a parsed platform path.
type Target struct {
	ProjectCode string
	Root        RootKind
	// Segments below the root, already normalized.
	Rel []string
}

// ObjectPath is the path inside the project, e.g. "users/alice/data".
func (t Target) ObjectPath() string {
	return path.Join(append([]string{string(t.Root)}, t.Rel...)...)
}

// String returns the user-visible form.
func (t Target) String() string {
	return t.ProjectCode + "/" + t.ObjectPath()
}

// Namespace is the folder directly under the root (users/<name>).
func (t Target) Namespace() string {
	if len(t.Rel) == 0 {
		return string(t.Root)
	}

	return path.Join(string(t.Root), t.Rel[0])
}

// Join returns a copy of t with name appended.
func (t Target) Join(name ...string) Target {
	rel := make([]string, 0, len(t.Rel)+len(name))
	rel = append(rel, t.Rel...)
	rel = append(rel, name...)

	return Target{ProjectCode: t.ProjectCode, Root: t.Root, Rel: rel}
}

// IdentifyTargetFolder parses a folder path. At least three segments are
// required unless allowShort is set (trash operations may address the root
// of the trash bin).
func IdentifyTargetFolder(input string, allowShort bool) (Target, error) {
	parts := splitPath(input)

	t, err := parseHead(input, parts, allowShort)
	if err != nil {
		return Target{}, err
	}

	for _, seg := range t.Rel {
		if !ValidFolderName(seg) {
			return Target{}, clierr.New(clierr.InvalidPath, "%q: invalid segment %q", input, seg)
		}
	}

	return t, nil
}

// ParseItemPath parses a path to a file or folder. File names may contain
// characters folder names may not, so segments are only checked for being
// non-empty.
func ParseItemPath(input string) (Target, error) {
	return parseHead(input, splitPath(input), false)
}

// ValidFolderName reports whether name may be used as a folder segment.
func ValidFolderName(name string) bool {
	return segmentRE.MatchString(name)
}

// CheckNewFolderName rejects names the client must never create.
func CheckNewFolderName(name string) error {
	if reservedNames[strings.ToLower(name)] {
		return clierr.New(clierr.InvalidFolderName, "%q is reserved", name)
	}

	if !ValidFolderName(name) {
		return clierr.New(clierr.InvalidFolderName, "%q", name)
	}

	return nil
}

func splitPath(input string) []string {
	trimmed := strings.Trim(strings.TrimSpace(input), "/")
	if trimmed == "" {
		return nil
	}

	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		parts[i] = norm.NFC.String(strings.TrimSpace(p))
	}

	return parts
}

func parseHead(input string, parts []string, allowShort bool) (Target, error) {
	minSegments := 3
	if allowShort {
		minSegments = 2
	}

	if len(parts) < minSegments {
		return Target{}, clierr.New(clierr.InvalidPath, "%q: expected <project>/<users|shared|trash>/<folder>", input)
	}

	for _, p := range parts {
		if p == "" {
			return Target{}, clierr.New(clierr.InvalidPath, "%q: empty segment", input)
		}
	}

	root := RootKind(strings.ToLower(parts[1]))

	switch root {
	case RootUsers, RootShared:
		if len(parts) < 3 {
			return Target{}, clierr.New(clierr.InvalidPath, "%q: missing namespace folder", input)
		}
	case RootTrash:
	default:
		return Target{}, clierr.New(clierr.InvalidPath, "%q: unknown root %q", input, parts[1])
	}

	return Target{ProjectCode: parts[0], Root: root, Rel: parts[2:]}, nil
}
