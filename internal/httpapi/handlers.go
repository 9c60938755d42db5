package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"

	"conference-orchestrator/internal/audit"
	"conference-orchestrator/internal/auth"
	"conference-orchestrator/internal/calls"
	"conference-orchestrator/internal/orchestrator"
	"conference-orchestrator/internal/telephony"
	"conference-orchestrator/pkg/logger"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps webhook and admin request bodies.
const maxBodyBytes = 1 << 20

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the orchestrator, return JSON.
type Handlers struct {
	Orchestrator *orchestrator.Orchestrator
	Audit        *audit.Service
}

// requestContext carries the request-scoped logger into the orchestrator.
func requestContext(c *gin.Context) context.Context {
	return logger.With(c.Request.Context(), logger.FromGin(c))
}

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
}

// --- Provider webhooks ---

// CallEvents receives the provider callback batch for one call record.
// Individual event outcomes never change the response code.
func (h Handlers) CallEvents(c *gin.Context) {
	log := logger.FromGin(c)
	id := c.Param("id")

	body, err := readBody(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	events, err := telephony.ParseEventBatch(body)
	if err != nil {
		log.Warn("callback batch rejected", "record_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event batch"})
		return
	}

	ctx := requestContext(c)
	if _, err := h.Orchestrator.Get(ctx, id); err != nil {
		if errors.Is(err, calls.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call record not found"})
			return
		}
		log.Error("load call record failed", "record_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
		return
	}

	results := h.Orchestrator.DispatchBatch(ctx, id, events)
	failed := 0
	for _, r := range results {
		if r.Outcome == orchestrator.OutcomeFailed {
			failed++
		}
	}
	log.Debug("callback batch dispatched", "record_id", id, "events", len(results), "failed", failed)
	c.Status(http.StatusNoContent)
}

// IncomingCalls receives Event Grid deliveries for calls ringing in on our numbers.
func (h Handlers) IncomingCalls(c *gin.Context) {
	log := logger.FromGin(c)

	body, err := readBody(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	batch, err := telephony.ParseEventGridBatch(body)
	if err != nil {
		log.Warn("event grid batch rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid event batch"})
		return
	}
	if batch.ValidationCode != "" {
		log.Info("event grid subscription validated")
		c.JSON(http.StatusOK, gin.H{"validationResponse": batch.ValidationCode})
		return
	}

	ctx := requestContext(c)
	handled := 0
	for _, call := range batch.IncomingCalls {
		res, err := h.Orchestrator.HandleIncomingCall(ctx, call)
		switch {
		case err == nil:
			handled++
			log.Info("incoming call handled", "record_id", res.RecordID, "participant_id", res.ParticipantID, "deferred", res.Deferred)
		case errors.Is(err, orchestrator.ErrNoListeningRecord):
			// Not ours; another handler on the number may pick it up.
			log.Info("incoming call not matched", "to", call.To)
		default:
			log.Warn("incoming call failed", "to", call.To, "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"handled": handled})
}

// --- Admin API ---

type participantRequest struct {
	ID            string          `json:"id"`
	PhoneNumber   string          `json:"phone_number"`
	Direction     calls.Direction `json:"direction"`
	Order         int             `json:"order"`
	Label         string          `json:"label"`
	MuteOnConnect bool            `json:"mute_on_connect"`
	IsRequired    bool            `json:"is_required"`
}

type createCallRequest struct {
	ID                    string               `json:"id"`
	ConferencePhoneNumber string               `json:"conference_phone_number"`
	Listening             bool                 `json:"listening"`
	Start                 bool                 `json:"start"`
	Participants          []participantRequest `json:"participants"`
}

func (r createCallRequest) record() calls.CallRecord {
	rec := calls.CallRecord{
		ID:                    r.ID,
		ConferencePhoneNumber: r.ConferencePhoneNumber,
		Listening:             r.Listening,
	}
	for _, p := range r.Participants {
		rec.Participants = append(rec.Participants, calls.Participant{
			ID:            p.ID,
			PhoneNumber:   p.PhoneNumber,
			Direction:     p.Direction,
			Order:         p.Order,
			Label:         p.Label,
			MuteOnConnect: p.MuteOnConnect,
			IsRequired:    p.IsRequired,
		})
	}
	return rec
}

func (h Handlers) CreateCall(c *gin.Context) {
	log := logger.FromGin(c)

	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ConferencePhoneNumber == "" || len(req.Participants) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conference_phone_number and participants required"})
		return
	}

	ctx := requestContext(c)
	rec, err := h.Orchestrator.Provision(ctx, req.record(), req.Start)
	switch {
	case err == nil:
	case errors.Is(err, calls.ErrInvalidRecord):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, calls.ErrAlreadyExists):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call record already exists"})
		return
	default:
		log.Error("provision call record failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provision failed"})
		return
	}

	h.logAdmin(c, rec.ID, "provisioned")
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) GetCall(c *gin.Context) {
	rec, err := h.Orchestrator.Get(requestContext(c), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	id := c.Param("id")
	if err := h.Orchestrator.Delete(requestContext(c), id); err != nil {
		h.storeError(c, err)
		return
	}
	h.logAdmin(c, id, "deleted")
	c.Status(http.StatusNoContent)
}

// Reconcile re-drives a record that stalled after a lost commit.
// Provider failures during the run are reported alongside the record.
func (h Handlers) Reconcile(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.Orchestrator.Reconcile(requestContext(c), id)
	if err != nil && rec.ID == "" {
		h.storeError(c, err)
		return
	}
	h.logAdmin(c, id, "reconciled")

	resp := gin.H{"record": rec}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h Handlers) History(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	id := c.Param("id")
	events, err := h.Audit.List(requestContext(c), id)
	if err != nil {
		logger.FromGin(c).Error("list audit events failed", "record_id", id, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h Handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, calls.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call record not found"})
		return
	}
	logger.FromGin(c).Error("call record store failed", "record_id", c.Param("id"), "err", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
}

func (h Handlers) logAdmin(c *gin.Context, recordID, message string) {
	if h.Audit == nil {
		return
	}
	actor, _ := auth.Subject(c.Request.Context())
	if err := h.Audit.LogAdminAction(c.Request.Context(), recordID, actor, message); err != nil {
		logger.FromGin(c).Warn("audit admin action failed", "record_id", recordID, "err", err)
	}
}
