package engine

import (
	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

// SelectEffective picks the winning candidate for one (tenant, user, type)
// resolution. Candidates must already be filtered to the requested type and
// is_active = true (the store guarantees both). Precedence follows the scope
// chain order: user > department > branch > client > project > org-wide.
//
// A tie at the same specificity is a data anomaly: the policy with the later
// created_at wins (then the lexically greater policy ID, so repeated calls
// are stable), and every losing same-rank policy ID is reported in
// Selection.Contenders for the caller to log.
//
// ok=false means no policy governs this action; callers apply system
// defaults, never treat it as an error.
func SelectEffective(chain []types.ScopeRef, candidates []types.Candidate) (types.Selection, bool) {
	bestRank := -1
	var best types.Candidate
	var contenders []string

	for _, c := range candidates {
		if !c.Policy.IsActive {
			continue
		}
		rank := assignmentRank(c.Assignment, chain)
		if rank < 0 {
			continue
		}
		switch {
		case bestRank == -1 || rank < bestRank:
			bestRank = rank
			best = c
			contenders = nil
		case rank == bestRank && c.Policy.ID != best.Policy.ID:
			if laterPolicy(c.Policy, best.Policy) {
				contenders = append(contenders, best.Policy.ID)
				best = c
			} else {
				contenders = append(contenders, c.Policy.ID)
			}
		}
	}

	if bestRank == -1 {
		return types.Selection{}, false
	}
	return types.Selection{
		Policy:     best.Policy,
		Scope:      chain[bestRank],
		Contenders: contenders,
	}, true
}

func laterPolicy(a types.Policy, b types.Policy) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
