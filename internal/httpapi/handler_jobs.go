package httpapi

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/events"
	"github.com/snarg/fieldops/internal/jobservice"
	"github.com/snarg/fieldops/internal/storage"
)

// createJobHandler handles POST /api/v1/jobs — direct job intake, bypassing
// the Conversation State Machine (used by the dashboard and form/email
// sources instead of phone/chat).
func (s *Server) createJobHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	var req createJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.ContactID == "" || req.Description == "" {
		return mapAppError(apperr.Validation("description", "contact_id and description are required"))
	}

	draft := jobservice.Draft{
		ContactID: req.ContactID, Title: req.Title, Description: req.Description,
		AddressSnapshot: req.Address, DistanceKM: req.DistanceKM,
		PreferredWindow: req.PreferredWindow, AccessNotes: req.AccessNotes, Source: req.Source,
	}
	triage := jobservice.TriageResult{Urgency: req.Urgency, Trade: req.Trade}
	if triage.Urgency == "" {
		triage.Urgency = domain.UrgencyNormal
	}
	if triage.Trade == "" {
		triage.Trade = domain.TradeGeneral
	}

	job, err := s.jobs.Create(c.Request().Context(), tid, draft, triage, actor(c))
	if err != nil {
		return mapAppError(err)
	}
	return c.JSON(http.StatusCreated, toJobResponse(job))
}

// listJobsHandler handles GET /api/v1/jobs with the §6 filter set.
func (s *Server) listJobsHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	f := storage.JobFilter{
		Status:    domain.JobStatus(c.QueryParam("status")),
		Urgency:   domain.Urgency(c.QueryParam("urgency")),
		Trade:     domain.TradeCategory(c.QueryParam("trade")),
		Source:    domain.JobSource(c.QueryParam("source")),
		Search:    c.QueryParam("q"),
		ContactID: c.QueryParam("contact_id"),
	}
	if v := c.QueryParam("created_after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedAfter = t
		}
	}
	if v := c.QueryParam("created_before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.CreatedBefore = t
		}
	}

	jobs, err := s.db.ListJobs(c.Request().Context(), tid, f)
	if err != nil {
		return mapAppError(err)
	}
	out := make([]*jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return c.JSON(http.StatusOK, out)
}

// jobStatsHandler handles GET /api/v1/jobs/stats — a lightweight status
// histogram for the ops dashboard.
func (s *Server) jobStatsHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	jobs, err := s.db.ListJobs(c.Request().Context(), tid, storage.JobFilter{Limit: 200})
	if err != nil {
		return mapAppError(err)
	}
	counts := make(map[domain.JobStatus]int)
	for _, j := range jobs {
		counts[j.Status]++
	}
	return c.JSON(http.StatusOK, counts)
}

// getJobHandler handles GET /api/v1/jobs/{id}.
func (s *Server) getJobHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	job, err := s.db.GetJob(c.Request().Context(), tid, c.Param("id"))
	if err != nil {
		return mapAppError(err)
	}
	return c.JSON(http.StatusOK, toJobResponse(job))
}

// updateJobStatusHandler handles PATCH /api/v1/jobs/{id}/status.
func (s *Server) updateJobStatusHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	job, err := s.jobs.UpdateStatus(c.Request().Context(), tid, c.Param("id"), req.Status, actor(c))
	if err != nil {
		return mapAppError(err)
	}
	if s.eventsMgr != nil {
		s.eventsMgr.Publish(jobEvent("job.status_changed", tid, job))
	}
	return c.JSON(http.StatusOK, toJobResponse(job))
}

// assignJobHandler handles PATCH /api/v1/jobs/{id}/assign — a manual
// dispatcher override of the Routing Engine's automatic assignment.
func (s *Server) assignJobHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	var req assignJobRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.DepartmentID == "" {
		return mapAppError(apperr.Validation("department_id", "department_id is required"))
	}
	if err := s.db.AssignRouting(c.Request().Context(), tid, c.Param("id"), req.DepartmentID, req.WorkerID, 0, "manual_override", actor(c)); err != nil {
		return mapAppError(err)
	}
	job, err := s.db.GetJob(c.Request().Context(), tid, c.Param("id"))
	if err != nil {
		return mapAppError(err)
	}
	return c.JSON(http.StatusOK, toJobResponse(job))
}

// cancelJobHandler handles DELETE /api/v1/jobs/{id} — jobs are never hard
// deleted, a cancellation is just a status transition.
func (s *Server) cancelJobHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	job, err := s.jobs.UpdateStatus(c.Request().Context(), tid, c.Param("id"), domain.JobCancelled, actor(c))
	if err != nil {
		return mapAppError(err)
	}
	return c.JSON(http.StatusOK, toJobResponse(job))
}

func jobEvent(eventType, tenantID string, job *domain.Job) events.Event {
	return events.Event{
		Type: eventType, TenantID: tenantID, Timestamp: time.Now().UTC(),
		Payload: map[string]any{"job_id": job.ID, "job_number": job.JobNumber, "status": string(job.Status)},
	}
}
