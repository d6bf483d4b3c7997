package licenseclient

import (
	"context"
	"time"

	"github.com/epam/rule-engine/internal/domain/license"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/storage"
)

// LicenseLookup is the read surface this package needs from the storage
// layer, kept narrow so orchestrator tests can fake it without a full Stores
// bundle.
type LicenseLookup interface {
	LinksForTenant(ctx context.Context, tenantID string) ([]storage.TenantLicenseLink, error)
	GetLicense(ctx context.Context, licenseKey string) (license.License, bool, error)
}

// SelectLicense iterates the tenant's linked CUSTODIAN_LICENSES parent
// records in specific-tenant-scope → all-cloud-scope → all-scope order,
// deduplicates by license key, and returns the first non-expired license
// whose customer scope permits this tenant (§4.5). Returns
// *errors.ServiceError(CodeNoLicense) when nothing qualifies.
func SelectLicense(ctx context.Context, lookup LicenseLookup, customer, tenantID string, now time.Time) (license.License, error) {
	links, err := lookup.LinksForTenant(ctx, tenantID)
	if err != nil {
		return license.License{}, err
	}

	seen := make(map[string]bool, len(links))
	for _, link := range links {
		if seen[link.LicenseKey] {
			continue
		}
		seen[link.LicenseKey] = true

		lic, ok, err := lookup.GetLicense(ctx, link.LicenseKey)
		if err != nil {
			return license.License{}, err
		}
		if !ok || lic.IsExpired(now) {
			continue
		}
		if license.IsSubjectApplicable(lic, customer, tenantID) {
			return lic, nil
		}
	}
	return license.License{}, svcerrors.NoLicense(tenantID)
}

// StoreLookup adapts a storage.TenantLicenseLinkStore and storage.LicenseStore
// pair (as held by internal/app's Stores bundle) into a LicenseLookup.
type StoreLookup struct {
	Links    storage.TenantLicenseLinkStore
	Licenses storage.LicenseStore
}

func (s StoreLookup) LinksForTenant(ctx context.Context, tenantID string) ([]storage.TenantLicenseLink, error) {
	return s.Links.LinksForTenant(ctx, tenantID)
}

func (s StoreLookup) GetLicense(ctx context.Context, licenseKey string) (license.License, bool, error) {
	return s.Licenses.Get(ctx, licenseKey)
}
