package dispatch

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

type AssignVendorInput struct {
	VendorID uuid.UUID `json:"vendor_id"`
	Notes    string    `json:"notes"`
}

// AssignVendor makes vendor the job's only active assignment. Any previously
// active assignment is revoked and its vendor's slot returned. The whole change
// commits in one transaction guarded by job and vendor versions, and is retried
// when a concurrent assignment wins the race.
func (s *Service) AssignVendor(ctx context.Context, actor models.Actor, jobID uuid.UUID, in AssignVendorInput) (*models.Assignment, error) {
	in.Notes = strings.TrimSpace(in.Notes)
	if in.VendorID == uuid.Nil {
		return nil, validation(map[string]string{"vendor_id": "is required"})
	}
	if len(in.Notes) > 1000 {
		return nil, validation(map[string]string{"notes": "must be at most 1000 characters"})
	}

	var (
		job        *models.Job
		assignment *models.Assignment
		superseded []*models.Assignment
	)
	err := s.inTx(ctx, func(tx store.Store) error {
		var err error
		job, err = tx.GetJob(ctx, jobID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Job")
		}
		vendor, err := tx.GetVendor(ctx, in.VendorID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Vendor")
		}
		if err := vendor.CanAccept(); err != nil {
			return capacityError(err)
		}

		now := s.now()
		existing, err := tx.ListAssignmentsByJob(ctx, job.ID, actor.TenantID)
		if err != nil {
			return err
		}
		superseded = superseded[:0]
		for _, prior := range existing {
			if !prior.IsActive() {
				continue
			}
			prior.Revoke(actor.UserID, now)
			if err := tx.TransitionAssignment(ctx, prior, models.AssignmentActive); err != nil {
				return err
			}
			if prior.VendorID == vendor.ID {
				vendor.Release()
			} else if err := s.releaseVendor(ctx, tx, prior.VendorID, actor.TenantID, now); err != nil {
				return err
			}
			superseded = append(superseded, prior)
		}

		if err := vendor.Reserve(); err != nil {
			return capacityError(err)
		}
		vendor.UpdatedAt = now
		if err := tx.UpdateVendor(ctx, vendor); err != nil {
			return err
		}

		assignment = &models.Assignment{
			ID:         uuid.New(),
			TenantID:   actor.TenantID,
			JobID:      job.ID,
			VendorID:   vendor.ID,
			VendorName: vendor.Name,
			Status:     models.AssignmentActive,
			Notes:      in.Notes,
			AssignedBy: actor.UserID,
			AssignedAt: now,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.CreateAssignment(ctx, assignment); err != nil {
			return err
		}

		job.SetStatus(models.JobStatusAssigned, now)
		name := vendor.Name
		job.AssignedVendorName = &name
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.JobAssigned{
		TenantID:     actor.TenantID,
		JobID:        job.ID,
		JobNumber:    job.JobNumber,
		Title:        job.Title,
		AssignmentID: assignment.ID,
		VendorID:     assignment.VendorID,
		VendorName:   assignment.VendorName,
		AssignedBy:   assignment.AssignedBy,
		AssignedAt:   assignment.AssignedAt,
	}, s.publishTimeout)

	for _, prior := range superseded {
		s.audit.Record(ctx, actor, audit.EntityAssignment, prior.ID, audit.ActionRevoked,
			map[string]any{"status": models.AssignmentActive},
			map[string]any{"status": prior.Status, "superseded_by": assignment.ID})
	}
	s.audit.Record(ctx, actor, audit.EntityAssignment, assignment.ID, audit.ActionCreated, nil, map[string]any{
		"job_id":      job.ID,
		"vendor_id":   assignment.VendorID,
		"vendor_name": assignment.VendorName,
	})

	return assignment, nil
}

// RevokeAssignment revokes the job's active assignment, returns the vendor's
// slot and puts the job back into review. No event is published.
func (s *Service) RevokeAssignment(ctx context.Context, actor models.Actor, jobID, assignmentID uuid.UUID) (*models.Assignment, error) {
	var assignment *models.Assignment
	err := s.inTx(ctx, func(tx store.Store) error {
		var err error
		assignment, err = tx.GetAssignment(ctx, assignmentID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Assignment")
		}
		if assignment.JobID != jobID {
			return invalidOperation("Assignment does not belong to this job")
		}
		if !assignment.IsActive() {
			return invalidOperation("Only active assignments can be revoked")
		}

		now := s.now()
		assignment.Revoke(actor.UserID, now)
		if err := tx.TransitionAssignment(ctx, assignment, models.AssignmentActive); err != nil {
			return err
		}
		if err := s.releaseVendor(ctx, tx, assignment.VendorID, actor.TenantID, now); err != nil {
			return err
		}

		job, err := tx.GetJob(ctx, jobID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Job")
		}
		job.SetStatus(models.JobStatusInReview, now)
		job.AssignedVendorName = nil
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, audit.EntityAssignment, assignment.ID, audit.ActionRevoked,
		map[string]any{"status": models.AssignmentActive},
		map[string]any{"status": assignment.Status, "job_id": jobID, "vendor_id": assignment.VendorID})

	return assignment, nil
}

// ListAssignments returns the job's assignment history, newest first.
func (s *Service) ListAssignments(ctx context.Context, actor models.Actor, jobID uuid.UUID) ([]*models.Assignment, error) {
	if _, err := s.store.GetJob(ctx, jobID, actor.TenantID); err != nil {
		return nil, notFoundAs(err, "Job")
	}
	return s.store.ListAssignmentsByJob(ctx, jobID, actor.TenantID)
}
