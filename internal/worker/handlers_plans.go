package worker

import (
	"net/http"

	"github.com/pilotlabs/console/pkg/models"
)

// handleGetPlans returns the deduplicated plan documents discovered under
// the project root and its worktree mirrors.
func (s *Service) handleGetPlans(w http.ResponseWriter, r *http.Request) {
	s.initMu.RLock()
	scanner := s.planScanner
	s.initMu.RUnlock()

	var plans []models.PlanInfo
	if scanner != nil {
		plans = scanner.Scan()
	}
	if plans == nil {
		plans = []models.PlanInfo{}
	}

	writeJSON(w, map[string]interface{}{
		"count": len(plans),
		"plans": plans,
	})
}
