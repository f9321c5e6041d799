// Package engine implements effective-policy resolution: scope-chain
// derivation, precedence selection, and rule evaluation. Everything here is
// a pure function over data the caller loaded; the engine performs no I/O.
package engine

import (
	"strings"

	"github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

// ResolveScopeChain returns the ordered scopes that could govern the user,
// most-specific first. Missing relations are simply omitted; the org scope
// is always present as the fallback.
func ResolveScopeChain(user types.UserScopes) []types.ScopeRef {
	chain := make([]types.ScopeRef, 0, 6)
	chain = append(chain, types.ScopeRef{Kind: types.ScopeUser, ID: strings.TrimSpace(user.UserID)})

	if dept := strings.TrimSpace(user.DepartmentID); dept != "" {
		chain = append(chain, types.ScopeRef{Kind: types.ScopeDepartment, ID: dept})
		if branch := strings.TrimSpace(user.BranchID); branch != "" {
			chain = append(chain, types.ScopeRef{Kind: types.ScopeBranch, ID: branch})
		}
	}
	if client := strings.TrimSpace(user.ClientID); client != "" {
		chain = append(chain, types.ScopeRef{Kind: types.ScopeClient, ID: client})
	}
	if project := strings.TrimSpace(user.ProjectID); project != "" {
		chain = append(chain, types.ScopeRef{Kind: types.ScopeProject, ID: project})
	}

	chain = append(chain, types.ScopeRef{Kind: types.ScopeOrg, ID: strings.TrimSpace(user.TenantID)})
	return chain
}

// assignmentRank returns the lowest chain index the assignment's set scope
// fields hit, or -1 when the assignment matches no scope in the chain. A
// tenant-wide assignment (all scope fields empty) ranks at the org entry.
func assignmentRank(a types.Assignment, chain []types.ScopeRef) int {
	if a.IsTenantWide() {
		return len(chain) - 1
	}
	for i, scope := range chain {
		if scope.ID == "" {
			continue
		}
		switch scope.Kind {
		case types.ScopeUser:
			if a.UserID == scope.ID {
				return i
			}
		case types.ScopeDepartment:
			if a.DepartmentID == scope.ID {
				return i
			}
		case types.ScopeBranch:
			if a.BranchID == scope.ID {
				return i
			}
		case types.ScopeClient:
			if a.ClientID == scope.ID {
				return i
			}
		case types.ScopeProject:
			if a.ProjectID == scope.ID {
				return i
			}
		}
	}
	return -1
}
