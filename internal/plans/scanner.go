package plans

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pilotlabs/console/pkg/models"
)

var (
	datePrefixRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-`)
	statusRe     = regexp.MustCompile(`(?m)^Status:\s*(\w+)`)
	approvedRe   = regexp.MustCompile(`(?mi)^Approved:\s*(Yes|No)`)
	phaseRe      = regexp.MustCompile(`(?m)^Phase:\s*(\S+)`)
	iterationsRe = regexp.MustCompile(`(?m)^Iterations:\s*(\d+)`)
	specTypeRe   = regexp.MustCompile(`(?mi)^Type:\s*(Feature|Bugfix)`)
	taskDoneRe   = regexp.MustCompile(`(?m)^\s*- \[[xX]\]`)
	taskOpenRe   = regexp.MustCompile(`(?m)^\s*- \[ \]`)
)

// Scanner discovers plan markdown files under a project root.
type Scanner struct {
	projectRoot string
	plansDir    string // relative to the root, e.g. "docs/plans"
}

// NewScanner creates a scanner rooted at projectRoot. plansDir is the
// plan directory path relative to the root and to each worktree.
func NewScanner(projectRoot, plansDir string) *Scanner {
	return &Scanner{projectRoot: projectRoot, plansDir: plansDir}
}

// Scan walks the main plan directory and every worktree mirror, returning
// the deduplicated plan list. Unreadable files are skipped with a log line
// rather than failing the whole scan.
func (s *Scanner) Scan() []models.PlanInfo {
	var found []models.PlanInfo

	found = append(found, s.scanDir(filepath.Join(s.projectRoot, s.plansDir))...)

	worktrees, err := os.ReadDir(filepath.Join(s.projectRoot, WorktreesDir))
	if err == nil {
		for _, wt := range worktrees {
			if !wt.IsDir() {
				continue
			}
			dir := filepath.Join(s.projectRoot, WorktreesDir, wt.Name(), s.plansDir)
			found = append(found, s.scanDir(dir)...)
		}
	}

	return Deduplicate(found)
}

// Dirs returns every directory the scanner covers, for change watching.
func (s *Scanner) Dirs() []string {
	dirs := []string{filepath.Join(s.projectRoot, s.plansDir)}
	worktrees, err := os.ReadDir(filepath.Join(s.projectRoot, WorktreesDir))
	if err == nil {
		for _, wt := range worktrees {
			if wt.IsDir() {
				dirs = append(dirs, filepath.Join(s.projectRoot, WorktreesDir, wt.Name(), s.plansDir))
			}
		}
	}
	return dirs
}

func (s *Scanner) scanDir(dir string) []models.PlanInfo {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var out []models.PlanInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		info, err := ParsePlanFile(path)
		if err != nil {
			log.Debug().Err(err).Str("path", path).Msg("Skipping unreadable plan file")
			continue
		}
		out = append(out, *info)
	}
	return out
}

// ParsePlanFile reads a plan markdown file and derives its PlanInfo.
// The logical name is the filename minus any leading date prefix and the
// .md extension.
func ParsePlanFile(path string) (*models.PlanInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	content := string(data)
	base := strings.TrimSuffix(filepath.Base(path), ".md")
	name := datePrefixRe.ReplaceAllString(base, "")

	info := &models.PlanInfo{
		Name:       name,
		Path:       path,
		Status:     models.PlanStatusPending,
		SpecType:   models.SpecTypeFeature,
		Worktree:   ClassifyOrigin(path) == OriginWorktree,
		ModifiedAt: stat.ModTime(),
	}

	if m := statusRe.FindStringSubmatch(content); m != nil {
		switch strings.ToUpper(m[1]) {
		case "COMPLETE":
			info.Status = models.PlanStatusComplete
		case "VERIFIED":
			info.Status = models.PlanStatusVerified
		}
	}
	if m := approvedRe.FindStringSubmatch(content); m != nil {
		info.Approved = strings.EqualFold(m[1], "yes")
	}
	if m := phaseRe.FindStringSubmatch(content); m != nil {
		info.Phase = m[1]
	}
	if m := iterationsRe.FindStringSubmatch(content); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.Iterations = n
		}
	}
	if m := specTypeRe.FindStringSubmatch(content); m != nil {
		if strings.EqualFold(m[1], "bugfix") {
			info.SpecType = models.SpecTypeBugfix
		}
	}

	info.CompletedTasks = len(taskDoneRe.FindAllString(content, -1))
	info.TotalTasks = info.CompletedTasks + len(taskOpenRe.FindAllString(content, -1))

	return info, nil
}
