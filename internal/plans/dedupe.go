package plans

import (
	"github.com/pilotlabs/console/pkg/models"
)

// Deduplicate reconciles plan records sharing a logical name so each name
// appears exactly once in the output.
//
// Winner selection within a name group:
//  1. A worktree-origin record beats a main-origin record regardless of
//     timestamps. While work is in flight in a worktree, its copy of the
//     plan is the authoritative one.
//  2. Same-origin ties go to the record with the later ModifiedAt.
//
// Pure function: no I/O, input slice is not mutated. Output order follows
// first appearance of each name in the input.
func Deduplicate(plans []models.PlanInfo) []models.PlanInfo {
	if len(plans) == 0 {
		return []models.PlanInfo{}
	}

	winners := make(map[string]models.PlanInfo, len(plans))
	order := make([]string, 0, len(plans))

	for _, p := range plans {
		current, seen := winners[p.Name]
		if !seen {
			winners[p.Name] = p
			order = append(order, p.Name)
			continue
		}
		if beats(p, current) {
			winners[p.Name] = p
		}
	}

	out := make([]models.PlanInfo, 0, len(order))
	for _, name := range order {
		out = append(out, winners[name])
	}
	return out
}

// beats reports whether candidate should replace current as the surviving
// record for a name.
func beats(candidate, current models.PlanInfo) bool {
	co := ClassifyOrigin(candidate.Path)
	cu := ClassifyOrigin(current.Path)
	if co != cu {
		return co == OriginWorktree
	}
	return candidate.ModifiedAt.After(current.ModifiedAt)
}
