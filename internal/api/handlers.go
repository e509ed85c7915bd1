package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"reminder-service/internal/analysis"
	"reminder-service/internal/config"
	"reminder-service/internal/db"
	"reminder-service/internal/delivery"
	"reminder-service/internal/logging"
	"reminder-service/internal/models"
	"reminder-service/internal/providers"
	"reminder-service/internal/services"
)

// Service is what the handlers need from the reminder service.
type Service interface {
	AnalyzeIssue(ctx context.Context, issueKey string, force bool) (*models.AnalysisResult, error)
	BatchAnalyze(ctx context.Context, req models.BatchRequest) (*models.BatchResult, error)
	FindIssuesNeedingAttention(ctx context.Context, f models.AttentionFilter) (*models.AttentionReport, error)
	History(ctx context.Context, issueKey string) (models.NotificationHistory, error)

	Notify(ctx context.Context, issueKey string) (*services.NotifyResult, error)
	DeliverNotification(ctx context.Context, n models.Notification) (models.DeliveryOutcome, error)
	DeliverBatch(ctx context.Context, ns []models.Notification) ([]models.DeliveryOutcome, error)
	GetNotification(id string) (models.NotificationRecord, error)
	RecordUserResponse(ctx context.Context, id string, r models.UserResponse, at time.Time) (models.NotificationRecord, error)
	CancelNotification(ctx context.Context, id string) (models.NotificationRecord, error)

	ProcessDeliveryQueue(ctx context.Context, userID string) (int, error)
	ProcessAllQueues(ctx context.Context) (int, error)
	Queue(userID string) models.DeliveryQueue

	Config() config.Engine
	UpdateConfiguration(partial []byte) (config.Engine, error)

	GetPreferences(ctx context.Context, userID string) (models.UserPreferences, error)
	SavePreferences(ctx context.Context, prefs models.UserPreferences) error
	AddContactPoint(ctx context.Context, userID string, in models.ContactPointCreate) (models.ContactPoint, error)
	ContactPoints(ctx context.Context, userID string) ([]models.ContactPoint, error)
	DeleteContactPoint(ctx context.Context, id string) error
	Inbox(ctx context.Context, userID string, limit int) ([]models.InboxItem, error)
}

type Handler struct {
	svc      Service
	hub      *providers.Hub
	logger   *logging.Logger
	upgrader websocket.Upgrader
}

func NewHandler(svc Service, hub *providers.Hub, logger *logging.Logger) *Handler {
	return &Handler{
		svc:    svc,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// fail maps domain errors onto status codes.
func (h *Handler) fail(c *gin.Context, what string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, delivery.ErrUnknownNotification), errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, delivery.ErrInvalidResponse), errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, analysis.ErrMissingKey), errors.Is(err, services.ErrUnsupportedContact):
		status = http.StatusBadRequest
	case errors.Is(err, delivery.ErrAlreadyFinal), errors.Is(err, delivery.ErrQueueBusy):
		status = http.StatusConflict
	case errors.Is(err, services.ErrNoRecipient):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s failed: %v", what, err)
	} else {
		h.logger.Warnf("%s rejected: %v", what, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Errorf("Invalid request body: %v", err)
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
}

func (h *Handler) AnalyzeIssue(c *gin.Context) {
	key := c.Param("key")
	force, _ := strconv.ParseBool(c.Query("force"))
	res, err := h.svc.AnalyzeIssue(c.Request.Context(), key, force)
	if err != nil {
		h.fail(c, "Analyze "+key, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) BatchAnalyze(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	res, err := h.svc.BatchAnalyze(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "Batch analyze", err)
		return
	}
	h.logger.Infof("Batch analyzed %d issues with %d errors", len(res.Results), len(res.Errors))
	c.JSON(http.StatusOK, res)
}

func (h *Handler) FindIssuesNeedingAttention(c *gin.Context) {
	f := models.AttentionFilter{
		JQL:      c.Query("jql"),
		Assignee: c.Query("assignee"),
	}
	for _, p := range c.QueryArray("project") {
		for _, key := range strings.Split(p, ",") {
			if key = strings.TrimSpace(key); key != "" {
				f.Projects = append(f.Projects, key)
			}
		}
	}
	var err error
	if f.MaxResults, err = intQuery(c, "max"); err != nil {
		h.badRequest(c, err)
		return
	}
	if f.UpcomingDays, err = intQuery(c, "upcoming_days"); err != nil {
		h.badRequest(c, err)
		return
	}
	report, err := h.svc.FindIssuesNeedingAttention(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "Attention scan", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) GetHistory(c *gin.Context) {
	key := c.Param("key")
	hist, err := h.svc.History(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "History "+key, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

func (h *Handler) NotifyIssue(c *gin.Context) {
	key := c.Param("key")
	res, err := h.svc.Notify(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "Notify "+key, err)
		return
	}
	h.logger.Infof("Notify %s: %s", key, res.Decision.Verdict)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeliverNotification(c *gin.Context) {
	var n models.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		h.badRequest(c, err)
		return
	}
	if n.IssueKey == "" || n.RecipientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "issue_key and recipient_id are required"})
		return
	}
	out, err := h.svc.DeliverNotification(c.Request.Context(), n)
	if err != nil {
		h.fail(c, "Deliver", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeliverBatch(c *gin.Context) {
	var ns []models.Notification
	if err := c.ShouldBindJSON(&ns); err != nil {
		h.badRequest(c, err)
		return
	}
	if len(ns) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one notification is required"})
		return
	}
	for _, n := range ns {
		if n.IssueKey == "" || n.RecipientID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "issue_key and recipient_id are required"})
			return
		}
	}
	out, err := h.svc.DeliverBatch(c.Request.Context(), ns)
	if err != nil {
		h.fail(c, "Deliver batch", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetNotification(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.svc.GetNotification(id)
	if err != nil {
		h.fail(c, "Get notification "+id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type responseRequest struct {
	Response models.UserResponse `json:"response" binding:"required"`
	At       *time.Time          `json:"at,omitempty"`
}

func (h *Handler) RecordResponse(c *gin.Context) {
	id := c.Param("id")
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	at := time.Now()
	if req.At != nil {
		at = *req.At
	}
	rec, err := h.svc.RecordUserResponse(c.Request.Context(), id, req.Response, at)
	if err != nil {
		h.fail(c, "Record response for "+id, err)
		return
	}
	h.logger.Infof("Recorded %s for notification %s", req.Response, id)
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) CancelNotification(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.svc.CancelNotification(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Cancel notification "+id, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ProcessQueue(c *gin.Context) {
	userID := c.Param("user_id")
	n, err := h.svc.ProcessDeliveryQueue(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Process queue "+userID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "processed": n})
}

func (h *Handler) ProcessAllQueues(c *gin.Context) {
	n, err := h.svc.ProcessAllQueues(c.Request.Context())
	if err != nil {
		h.fail(c, "Process queues", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processed": n})
}

func (h *Handler) GetQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Queue(c.Param("user_id")))
}

func (h *Handler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Config())
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	eng, err := h.svc.UpdateConfiguration(body)
	if err != nil {
		h.fail(c, "Update configuration", err)
		return
	}
	c.JSON(http.StatusOK, eng)
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID := c.Param("user_id")
	prefs, err := h.svc.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Get preferences for "+userID, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) SavePreferences(c *gin.Context) {
	userID := c.Param("user_id")
	prefs := models.DefaultPreferences(userID)
	if err := c.ShouldBindJSON(&prefs); err != nil {
		h.badRequest(c, err)
		return
	}
	prefs.UserID = userID
	if err := h.svc.SavePreferences(c.Request.Context(), prefs); err != nil {
		h.fail(c, "Save preferences for "+userID, err)
		return
	}
	h.logger.Infof("Saved preferences for user %s", userID)
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) GetContactPoints(c *gin.Context) {
	userID := c.Param("user_id")
	cps, err := h.svc.ContactPoints(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Get contact points for "+userID, err)
		return
	}
	h.logger.Infof("Retrieved %d contact points for user_id %s", len(cps), userID)
	c.JSON(http.StatusOK, cps)
}

func (h *Handler) CreateContactPoint(c *gin.Context) {
	userID := c.Param("user_id")
	var in models.ContactPointCreate
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err)
		return
	}
	cp, err := h.svc.AddContactPoint(c.Request.Context(), userID, in)
	if err != nil {
		h.fail(c, "Create contact point", err)
		return
	}
	h.logger.Infof("Created %s contact point for user %s", cp.Type, userID)
	c.JSON(http.StatusCreated, cp)
}

func (h *Handler) DeleteContactPoint(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.DeleteContactPoint(c.Request.Context(), id); err != nil {
		h.fail(c, "Delete contact point "+id, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetInbox(c *gin.Context) {
	userID := c.Param("user_id")
	limit, err := intQuery(c, "limit")
	if err != nil {
		h.badRequest(c, err)
		return
	}
	items, err := h.svc.Inbox(c.Request.Context(), userID, limit)
	if err != nil {
		h.fail(c, "Inbox for "+userID, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// WebSocket registers the connection with the hub for in-app delivery and
// holds it until the client goes away.
func (h *Handler) WebSocket(c *gin.Context) {
	userID := c.Param("user_id")
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade for user %s failed: %v", userID, err)
		return
	}
	if !h.hub.AddConnection(userID, conn) {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer func() {
		h.hub.RemoveConnection(userID, conn)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
