package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fielddispatch/internal/audit"
	"github.com/kiranshivaraju/fielddispatch/internal/events"
	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// JobDetails are the dispatcher-editable fields of a job.
type JobDetails struct {
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	CustomerName   string             `json:"customer_name"`
	CustomerEmail  string             `json:"customer_email"`
	CustomerPhone  string             `json:"customer_phone"`
	ServiceAddress string             `json:"service_address"`
	ServiceType    string             `json:"service_type"`
	Priority       models.JobPriority `json:"priority"`
	ScheduledAt    *time.Time         `json:"scheduled_at"`
}

func (d *JobDetails) normalize() {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.CustomerEmail = strings.TrimSpace(d.CustomerEmail)
	d.CustomerPhone = strings.TrimSpace(d.CustomerPhone)
	d.ServiceAddress = strings.TrimSpace(d.ServiceAddress)
	d.ServiceType = strings.TrimSpace(d.ServiceType)
	if d.Priority == "" {
		d.Priority = models.PriorityMedium
	}
}

func (d *JobDetails) validate() error {
	fields := map[string]string{}
	required(fields, "title", d.Title, 200)
	required(fields, "customer_name", d.CustomerName, 200)
	required(fields, "service_address", d.ServiceAddress, 500)
	required(fields, "service_type", d.ServiceType, 100)
	maxLen(fields, "description", d.Description, 2000)
	maxLen(fields, "customer_phone", d.CustomerPhone, 50)
	if d.CustomerEmail != "" {
		if _, err := mail.ParseAddress(d.CustomerEmail); err != nil {
			fields["customer_email"] = "must be a valid email address"
		}
	}
	if !d.Priority.Valid() {
		fields["priority"] = "must be one of low, medium, high, critical"
	}
	if len(fields) > 0 {
		return validation(fields)
	}
	return nil
}

func required(fields map[string]string, name, v string, max int) {
	if v == "" {
		fields[name] = "is required"
		return
	}
	maxLen(fields, name, v, max)
}

func maxLen(fields map[string]string, name, v string, max int) {
	if len(v) > max {
		fields[name] = fmt.Sprintf("must be at most %d characters", max)
	}
}

// FormatJobNumber renders the human-readable job number, e.g. JOB-2025-00042.
func FormatJobNumber(year, seq int) string {
	return fmt.Sprintf("JOB-%d-%05d", year, seq)
}

// CreateJob persists a new job in status New and announces it.
func (s *Service) CreateJob(ctx context.Context, actor models.Actor, in JobDetails) (*models.Job, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	var job *models.Job
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		seq, err := tx.NextJobNumber(ctx, actor.TenantID, now.Year())
		if err != nil {
			return err
		}
		job = &models.Job{
			ID:             uuid.New(),
			TenantID:       actor.TenantID,
			JobNumber:      FormatJobNumber(now.Year(), seq),
			Title:          in.Title,
			Description:    in.Description,
			CustomerName:   in.CustomerName,
			CustomerEmail:  in.CustomerEmail,
			CustomerPhone:  in.CustomerPhone,
			ServiceAddress: in.ServiceAddress,
			ServiceType:    in.ServiceType,
			Status:         models.JobStatusNew,
			Priority:       in.Priority,
			ScheduledAt:    in.ScheduledAt,
			CreatedBy:      actor.UserID,
			Version:        1,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.audit.Record(ctx, actor, audit.EntityJob, job.ID, audit.ActionCreated, nil, job)

	s.publish(ctx, events.JobCreated{
		TenantID:       job.TenantID,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		Title:          job.Title,
		Description:    job.Description,
		ServiceType:    job.ServiceType,
		ServiceAddress: job.ServiceAddress,
		Priority:       job.Priority,
		CreatedBy:      job.CreatedBy,
		CreatedAt:      job.CreatedAt,
	}, s.publishTimeout)

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, jobID, actor.TenantID)
	if err != nil {
		return nil, notFoundAs(err, "Job")
	}
	return job, nil
}

// ListJobs returns a page of the actor's jobs. The filter's tenant is always the actor's.
func (s *Service) ListJobs(ctx context.Context, actor models.Actor, filter store.JobFilter) ([]*models.Job, int, error) {
	filter.TenantID = actor.TenantID
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, 0, validation(map[string]string{"status": fmt.Sprintf("unknown status %q", st)})
		}
	}
	for _, p := range filter.Priorities {
		if !p.Valid() {
			return nil, 0, validation(map[string]string{"priority": fmt.Sprintf("unknown priority %q", p)})
		}
	}
	return s.store.ListJobs(ctx, filter)
}

// UpdateJob replaces the job's details. If expectedVersion is non-zero it must
// match the stored version.
func (s *Service) UpdateJob(ctx context.Context, actor models.Actor, jobID uuid.UUID, in JobDetails, expectedVersion int) (*models.Job, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	var before, job *models.Job
	err := s.inTx(ctx, func(tx store.Store) error {
		var err error
		job, err = tx.GetJob(ctx, jobID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Job")
		}
		if expectedVersion != 0 && job.Version != expectedVersion {
			return conflict("The job has been changed by someone else; reload and try again")
		}
		snapshot := *job
		before = &snapshot

		job.Title = in.Title
		job.Description = in.Description
		job.CustomerName = in.CustomerName
		job.CustomerEmail = in.CustomerEmail
		job.CustomerPhone = in.CustomerPhone
		job.ServiceAddress = in.ServiceAddress
		job.ServiceType = in.ServiceType
		job.Priority = in.Priority
		job.ScheduledAt = in.ScheduledAt
		job.UpdatedAt = s.now()
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, audit.EntityJob, job.ID, audit.ActionUpdated, before, job)
	return job, nil
}

// UpdateJobStatus force-sets the job status. Any target status is accepted.
// Entering Completed or Cancelled closes the active assignment and returns the
// vendor's capacity slot.
func (s *Service) UpdateJobStatus(ctx context.Context, actor models.Actor, jobID uuid.UUID, status models.JobStatus) (*models.Job, error) {
	if !status.Valid() {
		return nil, validation(map[string]string{"status": fmt.Sprintf("unknown status %q", status)})
	}

	var (
		job       *models.Job
		oldStatus models.JobStatus
		closed    *models.Assignment
	)
	err := s.inTx(ctx, func(tx store.Store) error {
		var err error
		job, err = tx.GetJob(ctx, jobID, actor.TenantID)
		if err != nil {
			return notFoundAs(err, "Job")
		}
		oldStatus = job.Status
		now := s.now()

		closed = nil
		if status == models.JobStatusCompleted || status == models.JobStatusCancelled {
			closed, err = s.closeActiveAssignment(ctx, tx, actor, job.ID, status, now)
			if err != nil {
				return err
			}
		}

		job.SetStatus(status, now)
		return tx.UpdateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor, audit.EntityJob, job.ID, audit.ActionStatusChanged,
		map[string]any{"status": oldStatus}, map[string]any{"status": job.Status})
	if closed != nil {
		action := audit.ActionRevoked
		if closed.Status == models.AssignmentCompleted {
			action = audit.ActionUpdated
		}
		s.audit.Record(ctx, actor, audit.EntityAssignment, closed.ID, action,
			map[string]any{"status": models.AssignmentActive}, map[string]any{"status": closed.Status})
	}
	return job, nil
}

// CancelJob moves the job to Cancelled. Jobs are never deleted.
func (s *Service) CancelJob(ctx context.Context, actor models.Actor, jobID uuid.UUID) (*models.Job, error) {
	return s.UpdateJobStatus(ctx, actor, jobID, models.JobStatusCancelled)
}

func (s *Service) closeActiveAssignment(ctx context.Context, tx store.Store, actor models.Actor, jobID uuid.UUID, status models.JobStatus, now time.Time) (*models.Assignment, error) {
	assignments, err := tx.ListAssignmentsByJob(ctx, jobID, actor.TenantID)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if !a.IsActive() {
			continue
		}
		if status == models.JobStatusCompleted {
			a.Status = models.AssignmentCompleted
			a.CompletedAt = &now
			a.UpdatedAt = now
		} else {
			a.Revoke(actor.UserID, now)
		}
		if err := tx.TransitionAssignment(ctx, a, models.AssignmentActive); err != nil {
			return nil, err
		}
		if err := s.releaseVendor(ctx, tx, a.VendorID, actor.TenantID, now); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, nil
}

// releaseVendor returns one capacity slot to the vendor, floored at zero.
// A vendor that no longer exists has nothing to release.
func (s *Service) releaseVendor(ctx context.Context, tx store.Store, vendorID, tenantID uuid.UUID, now time.Time) error {
	vendor, err := tx.GetVendor(ctx, vendorID, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("assignment references missing vendor", "vendor_id", vendorID, "tenant_id", tenantID)
		return nil
	}
	if err != nil {
		return err
	}
	vendor.Release()
	vendor.UpdatedAt = now
	return tx.UpdateVendor(ctx, vendor)
}
