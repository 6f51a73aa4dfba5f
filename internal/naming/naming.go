// Package naming derives the deterministic names used by a fusillade session:
// session keys, per-script sub keys and report file paths.
//
// Everything in this package is pure; nothing touches the filesystem.
package naming

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SessionKeyLayout is the time layout of a session key (YYYYMMDD-HHmmss).
const SessionKeyLayout = "20060102-150405"

// Report directories below the log root. They double as report extensions.
const (
	RawDir      = "json"
	RenderedDir = "html"
)

// SessionKey formats t as a sortable session key.
func SessionKey(t time.Time) string {
	return t.Format(SessionKeyLayout)
}

// DeriveSubKey returns the sub key of a script within a session: the script's
// base name without extension, a dash, and the session key.
func DeriveSubKey(scriptPath, sessionKey string) string {
	base := filepath.Base(scriptPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "-" + sessionKey
}

// RawReportPath is where the load generator writes the raw report for subKey.
func RawReportPath(logRoot, subKey string) string {
	return filepath.Join(logRoot, RawDir, subKey+"."+RawDir)
}

// RenderedReportPath is where the report renderer writes the HTML report for subKey.
func RenderedReportPath(logRoot, subKey string) string {
	return filepath.Join(logRoot, RenderedDir, subKey+"."+RenderedDir)
}

// KindDir returns the report directory of kind ("json" or "html") under logRoot.
func KindDir(logRoot, kind string) string {
	return filepath.Join(logRoot, kind)
}

// KindGlob returns the glob pattern matching every report of kind under logRoot.
func KindGlob(logRoot, kind string) string {
	return filepath.Join(logRoot, kind, "*."+kind)
}

// ScriptGlob returns the glob pattern matching every test script under srcRoot.
func ScriptGlob(srcRoot string) string {
	return filepath.Join(srcRoot, "*.json")
}

// CollisionError reports scripts whose sub keys would overwrite each other's reports.
type CollisionError struct {
	SubKey  string
	Scripts []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("scripts %s share sub key %q", strings.Join(e.Scripts, ", "), e.SubKey)
}

// CheckCollisions returns a *CollisionError for the first sub key (in sorted
// order) claimed by more than one script, or nil.
//
// Scripts globbed from a single directory never collide, since their base
// names are unique. The check matters for callers that gather scripts from
// several directories, such as a/load.json and b/load.json.
func CheckCollisions(scripts []string, sessionKey string) error {
	owners := make(map[string][]string, len(scripts))
	for _, script := range scripts {
		subKey := DeriveSubKey(script, sessionKey)
		owners[subKey] = append(owners[subKey], script)
	}

	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if len(owners[k]) > 1 {
			return &CollisionError{SubKey: k, Scripts: owners[k]}
		}
	}
	return nil
}
