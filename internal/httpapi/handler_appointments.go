package httpapi

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/scheduling"
)

// appointmentSlotsHandler handles POST /api/v1/appointments/slots. The
// caller supplies the worker's already-computed open intervals (business
// hours intersected with working hours, minus existing bookings) since
// that step depends on tenant/worker calendar configuration the caller
// already holds; this endpoint performs only the pure slicing in §4.8
// step 4.
func (s *Server) appointmentSlotsHandler(c *echo.Context) error {
	var req appointmentSlotsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.WorkerID == "" {
		return mapAppError(apperr.Validation("worker_id", "worker_id is required"))
	}
	if req.Earliest.IsZero() {
		req.Earliest = time.Now().UTC()
	}
	topN := req.TopN
	if topN <= 0 {
		topN = 5
	}

	open := make([]scheduling.Interval, 0, len(req.OpenIntervals))
	for _, iv := range req.OpenIntervals {
		open = append(open, scheduling.Interval{Start: iv.Start, End: iv.End})
	}

	slots := scheduling.FindSlots(req.WorkerID, open, scheduling.Criteria{
		Earliest:        req.Earliest,
		Latest:          req.Latest,
		Urgency:         req.Urgency,
		PreferredWindow: req.PreferredWindow,
	}, topN)

	out := make([]slotDTO, 0, len(slots))
	for _, sl := range slots {
		out = append(out, slotDTO{WorkerID: sl.WorkerID, Start: sl.Start, End: sl.End, Preferred: sl.Preferred, Emergency: sl.Emergency})
	}
	return c.JSON(http.StatusOK, out)
}

// appointmentBookHandler handles POST /api/v1/appointments/book.
func (s *Server) appointmentBookHandler(c *echo.Context) error {
	tid, err := tenantID(c)
	if err != nil {
		return err
	}
	if s.booker == nil {
		return mapAppError(apperr.New(apperr.KindInternal, "", "scheduling booker not configured"))
	}
	var req appointmentBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errorBody{Detail: err.Error(), Code: "validation"})
	}
	if req.JobID == "" || req.WorkerID == "" {
		return mapAppError(apperr.Validation("job_id", "job_id and worker_id are required"))
	}

	slot := scheduling.Slot{WorkerID: req.WorkerID, Start: req.Start, End: req.End}
	if err := s.booker.Book(c.Request().Context(), tid, req.JobID, slot, actor(c)); err != nil {
		if apperr.KindOf(err) == apperr.KindConflict && s.metrics != nil {
			s.metrics.BookingConflicts.Add(1)
		}
		return mapAppError(err)
	}
	return c.JSON(http.StatusOK, slotDTO{WorkerID: req.WorkerID, Start: req.Start, End: req.End})
}
