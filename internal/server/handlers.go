package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"fulfillment/internal/analytics"
	"fulfillment/internal/orders"
	"fulfillment/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const defaultProjectionDays = 30

func (s *Server) createOrder(c *gin.Context) {
	var req orders.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", orders.ErrInvalidRequest, err))
		return
	}

	order, err := s.orders.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) getOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	order, err := s.orders.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) updateOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var patch orders.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, fmt.Errorf("%w: %v", orders.ErrInvalidRequest, err))
		return
	}

	order, err := s.orders.Update(c.Request.Context(), id, patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

type statusBody struct {
	Status models.OrderStatus `json:"status"`
}

// setOrderStatus treats a repeated cancellation as success.
func (s *Server) setOrderStatus(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, fmt.Errorf("%w: %v", orders.ErrInvalidRequest, err))
		return
	}

	order, err := s.orders.SetStatus(c.Request.Context(), id, body.Status)
	if err != nil && !errors.Is(err, orders.ErrAlreadyCancelled) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) getKPIs(c *gin.Context) {
	q, err := s.kpiQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}
	kpis, err := s.kpis.Compute(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, kpis)
}

func (s *Server) dailyRevenue(c *gin.Context) {
	now := time.Now()
	to := analytics.BucketKey(now, s.loc, analytics.Day)
	from := analytics.BucketKey(now.AddDate(0, 0, -defaultProjectionDays), s.loc, analytics.Day)

	for name, dst := range map[string]*string{"start": &from, "end": &to} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		day, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
		if err != nil {
			writeError(c, fmt.Errorf("%w: %s must be YYYY-MM-DD", errBadQuery, name))
			return
		}
		*dst = day.Format(time.DateOnly)
	}
	if from > to {
		writeError(c, fmt.Errorf("%w: start %s is after end %s", analytics.ErrInvalidRange, from, to))
		return
	}

	buckets, err := s.projection.DailyRevenue(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"start": from, "end": to, "revenue": buckets})
}

// kpiQuery reads start, end, useSimulated and groupBy. Dates are RFC 3339
// timestamps or plain days in the analytics zone; a plain end day covers the
// whole day. A lone bound is parsed but leaves the metrics unfiltered.
func (s *Server) kpiQuery(c *gin.Context) (analytics.Query, error) {
	var q analytics.Query
	var err error

	if q.Start, err = s.parseBound(c.Query("start"), false); err != nil {
		return q, fmt.Errorf("%w: start: %v", errBadQuery, err)
	}
	if q.End, err = s.parseBound(c.Query("end"), true); err != nil {
		return q, fmt.Errorf("%w: end: %v", errBadQuery, err)
	}
	if raw := c.Query("useSimulated"); raw != "" {
		if q.UseSimulated, err = strconv.ParseBool(raw); err != nil {
			return q, fmt.Errorf("%w: useSimulated must be a boolean", errBadQuery)
		}
	}
	q.GroupBy = analytics.ParseGranularity(c.Query("groupBy"))
	return q, nil
}

func (s *Server) parseBound(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", raw)
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, nil
}

func orderID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, fmt.Errorf("%w: order id %q", errBadQuery, c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}
