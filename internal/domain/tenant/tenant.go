// Package tenant models Tenant and Customer, the scannable-account and
// billing-parent entities of §3.
package tenant

import "time"

// Cloud enumerates the supported cloud providers.
type Cloud string

const (
	CloudAWS        Cloud = "AWS"
	CloudAzure      Cloud = "AZURE"
	CloudGoogle     Cloud = "GOOGLE"
	CloudKubernetes Cloud = "KUBERNETES"
)

// Tenant is a scannable cloud account. Immutable after creation except for
// the region set and the active flag, per §3's lifecycle note.
type Tenant struct {
	ID           string
	Customer     string
	Cloud        Cloud
	NativeID     string // account / subscription / project id
	Regions      []string
	Active       bool
	ActivatedAt  time.Time
	CreatedAt    time.Time
}

// WithRegions returns a copy of t with its region set replaced — the only
// attribute besides Active that may change after creation.
func (t Tenant) WithRegions(regions []string) Tenant {
	t.Regions = append([]string(nil), regions...)
	return t
}

// WithActive returns a copy of t with its active flag set.
func (t Tenant) WithActive(active bool) Tenant {
	t.Active = active
	return t
}

// Customer is the billing/grouping parent of tenants.
type Customer struct {
	Name     string
	Contacts []string // administrator contacts
}
