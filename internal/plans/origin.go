// Package plans discovers spec-plan markdown files and reconciles duplicates
// that appear in both the main working copy and a git-worktree mirror.
package plans

import (
	"path/filepath"
	"strings"
)

// Origin classifies where a plan file was discovered.
type Origin int

const (
	// OriginMain is the project's own plan directory.
	OriginMain Origin = iota
	// OriginWorktree is an isolated worktree mirror of the plan directory.
	OriginWorktree
)

// WorktreesDir is the path segment marking a worktree mirror.
const WorktreesDir = ".worktrees"

// ClassifyOrigin reports whether a plan path lives in a worktree mirror.
// The check is segment-based so a directory merely named "my.worktrees.bak"
// does not classify as a worktree.
func ClassifyOrigin(path string) Origin {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == WorktreesDir {
			return OriginWorktree
		}
	}
	return OriginMain
}

func (o Origin) String() string {
	if o == OriginWorktree {
		return "worktree"
	}
	return "main"
}
