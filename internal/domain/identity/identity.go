package identity

import "github.com/google/uuid"

// Role is the caller's function within the procurement process.
// Authentication happens at the edge; the engine only enforces role and
// ownership checks against an already-verified caller.
type Role string

const (
	RoleProcurementOfficer Role = "procurement_officer"
	RoleBidder             Role = "bidder"
	RoleEvaluator          Role = "evaluator"
	RoleApprover           Role = "approver"
	RoleAdmin              Role = "admin"
)

// Caller is the verified identity every operation receives.
type Caller struct {
	ID    uuid.UUID `json:"id"`
	Role  Role      `json:"role"`
	Email string    `json:"email,omitempty"`
}

// Is reports whether the caller holds the given role. Admin passes every
// role check.
func (c Caller) Is(role Role) bool {
	return c.Role == role || c.Role == RoleAdmin
}
