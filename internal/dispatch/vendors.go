package dispatch

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

type CreateVendorInput struct {
	Name            string   `json:"name"`
	ContactEmail    string   `json:"contact_email"`
	ContactPhone    string   `json:"contact_phone"`
	ServiceArea     string   `json:"service_area"`
	Specializations []string `json:"specializations"`
	CapacityLimit   int      `json:"capacity_limit"`
	Rating          *float64 `json:"rating"`
}

func (in *CreateVendorInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.ServiceArea = strings.TrimSpace(in.ServiceArea)
	specs := make([]string, 0, len(in.Specializations))
	for _, sp := range in.Specializations {
		if sp = strings.TrimSpace(sp); sp != "" {
			specs = append(specs, sp)
		}
	}
	in.Specializations = specs
	if in.CapacityLimit == 0 {
		in.CapacityLimit = models.DefaultCapacityLimit
	}
}

func (in *CreateVendorInput) validate() error {
	fields := map[string]string{}
	required(fields, "name", in.Name, 200)
	maxLen(fields, "service_area", in.ServiceArea, 200)
	maxLen(fields, "contact_phone", in.ContactPhone, 50)
	if in.ContactEmail != "" {
		if _, err := mail.ParseAddress(in.ContactEmail); err != nil {
			fields["contact_email"] = "must be a valid email address"
		}
	}
	if in.CapacityLimit < 1 {
		fields["capacity_limit"] = "must be at least 1"
	}
	if in.Rating != nil && (*in.Rating < 0 || *in.Rating > 5) {
		fields["rating"] = "must be between 0 and 5"
	}
	if len(fields) > 0 {
		return validation(fields)
	}
	return nil
}

func (s *Service) CreateVendor(ctx context.Context, actor models.Actor, in CreateVendorInput) (*models.Vendor, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	vendor := &models.Vendor{
		ID:              uuid.New(),
		TenantID:        actor.TenantID,
		Name:            in.Name,
		ContactEmail:    in.ContactEmail,
		ContactPhone:    in.ContactPhone,
		ServiceArea:     in.ServiceArea,
		Specializations: in.Specializations,
		CapacityLimit:   in.CapacityLimit,
		Rating:          in.Rating,
		IsActive:        true,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.CreateVendor(ctx, vendor); err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}

	s.audit.Record(ctx, actor, audit.EntityVendor, vendor.ID, audit.ActionCreated, nil, vendor)
	return vendor, nil
}

func (s *Service) GetVendor(ctx context.Context, actor models.Actor, vendorID uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.store.GetVendor(ctx, vendorID, actor.TenantID)
	if err != nil {
		return nil, notFoundAs(err, "Vendor")
	}
	return vendor, nil
}

func (s *Service) ListVendors(ctx context.Context, actor models.Actor, filter store.VendorFilter) ([]*models.Vendor, int, error) {
	filter.TenantID = actor.TenantID
	return s.store.ListVendors(ctx, filter)
}

// SetVendorActive activates or deactivates a vendor. Existing assignments are
// untouched; an inactive vendor just cannot receive new ones.
func (s *Service) SetVendorActive(ctx context.Context, actor models.Actor, vendorID uuid.UUID, active bool) (*models.Vendor, error) {
	var vendor *models.Vendor
	var changed bool
	err := s.inTx(ctx, func(tx store.Store) error {
		var err error
		vendor, err = tx.GetVendor(ctx, vendorID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Vendor")
		}
		changed = vendor.IsActive != active
		if !changed {
			return nil
		}
		vendor.IsActive = active
		vendor.UpdatedAt = s.now()
		return tx.UpdateVendor(ctx, vendor)
	})
	if err != nil {
		return nil, err
	}

	if changed {
		action := audit.ActionDeactivated
		if active {
			action = audit.ActionActivated
		}
		s.audit.Record(ctx, actor, audit.EntityVendor, vendor.ID, action,
			map[string]bool{"is_active": !active}, map[string]bool{"is_active": active})
	}
	return vendor, nil
}
