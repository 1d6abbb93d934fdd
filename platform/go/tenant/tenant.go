package tenant

import (
	"time"

	"github.com/google/uuid"
)

// Status captures the lifecycle state of a tenant registry entry.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Plan identifies the subscription tier that drives quota limits.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Tenant is the registry record for one tenant. Each tenant owns exactly one
// isolated data store; Subdomain is the primary human-facing identifier.
type Tenant struct {
	ID        uuid.UUID
	Subdomain string
	Name      string
	Plan      Plan
	IsActive  bool
	Settings  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlanFromString maps a stored string to a Plan, defaulting to free on unknown.
func PlanFromString(s string) Plan {
	switch Plan(s) {
	case PlanFree, PlanStarter, PlanPro, PlanEnterprise:
		return Plan(s)
	default:
		return PlanFree
	}
}
