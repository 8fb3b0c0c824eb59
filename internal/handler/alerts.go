package handlers

import (
	"net/http"

	"ResQMob/internal/engine"
	"ResQMob/internal/models"
	"ResQMob/pkg/response"
	"ResQMob/pkg/sse"
	"ResQMob/pkg/util"
	"ResQMob/pkg/websocket"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers binds the HTTP surface to the alert engine. Caller identity
// comes from the X-User-ID header; authentication itself lives in front of
// this service.
type Handlers struct {
	engine *engine.Engine
	db     *gorm.DB
	events *sse.Hub
	ws     *websocket.Hub
}

func NewHandlers(eng *engine.Engine, db *gorm.DB, events *sse.Hub, ws *websocket.Hub) *Handlers {
	return &Handlers{engine: eng, db: db, events: events, ws: ws}
}

func callerID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}

type createAlertRequest struct {
	Type         models.AlertType `json:"type" binding:"required"`
	UrgencyLevel int              `json:"urgencyLevel" binding:"required"`
	Message      string           `json:"message"`
	IsAnonymous  bool             `json:"isAnonymous"`
}

// CreateAlert 创建SOS警报
func (h *Handlers) CreateAlert(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		response.Fail(c, "missing X-User-ID", nil)
		return
	}
	var req createAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	alert, err := h.engine.CreateAlert(c.Request.Context(), userID, req.Type, req.UrgencyLevel, req.Message, req.IsAnonymous)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "alert created", alert)
}

type respondRequest struct {
	Status models.ResponderStatus `json:"status" binding:"required"`
}

// Respond 响应警报
func (h *Handlers) Respond(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		response.Fail(c, "missing X-User-ID", nil)
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	r, err := h.engine.RespondToAlert(c.Request.Context(), c.Param("id"), userID, req.Status)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "response recorded", r)
}

type resolveRequest struct {
	Status models.AlertStatus `json:"status" binding:"required"`
}

// Resolve 解除警报（仅创建者）
func (h *Handlers) Resolve(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		response.Fail(c, "missing X-User-ID", nil)
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}

	alert, err := h.engine.ResolveAlert(c.Request.Context(), c.Param("id"), userID, req.Status)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "alert resolved", alert)
}

// Escalate 手动升级警报
func (h *Handlers) Escalate(c *gin.Context) {
	alert, err := h.engine.EscalateAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "alert escalated", alert)
}

// Confirm 确认警报
func (h *Handlers) Confirm(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		response.Fail(c, "missing X-User-ID", nil)
		return
	}
	alert, err := h.engine.ConfirmAlert(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "alert confirmed", alert)
}

type nearbyQuery struct {
	Lat    float64 `form:"lat" binding:"required"`
	Lng    float64 `form:"lng" binding:"required"`
	Radius float64 `form:"radius"`
}

// Nearby 查询附近的活跃警报
func (h *Handlers) Nearby(c *gin.Context) {
	var q nearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, "invalid query", nil)
		return
	}
	alerts, err := h.engine.GetActiveAlertsNear(c.Request.Context(), q.Lat, q.Lng, q.Radius)
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "ok", alerts)
}

// GetAlert 查询单个警报
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.engine.GetAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "ok", alert)
}

// UserAlerts 查询用户的警报历史
func (h *Handlers) UserAlerts(c *gin.Context) {
	alerts, err := h.engine.GetUserAlerts(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "ok", alerts)
}

type locationRequest struct {
	Latitude  float64 `json:"latitude" binding:"required"`
	Longitude float64 `json:"longitude" binding:"required"`
	Accuracy  float64 `json:"accuracy"`
}

// ReportLocation 上报位置
func (h *Handlers) ReportLocation(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		response.Fail(c, "missing X-User-ID", nil)
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "invalid request", nil)
		return
	}
	if err := h.engine.ReportLocation(c.Request.Context(), userID, req.Latitude, req.Longitude, req.Accuracy); err != nil {
		response.FailErr(c, err)
		return
	}
	response.Success(c, "location recorded", nil)
}

// Stream 订阅警报事件流（SSE）
func (h *Handlers) Stream(c *gin.Context) {
	h.events.Serve(c, util.NewID())
}

// Connect 建立WebSocket推送通道
func (h *Handlers) Connect(c *gin.Context) {
	userID := callerID(c)
	if userID == "" {
		userID = c.Query("user")
	}
	if userID == "" {
		response.Fail(c, "missing user id", nil)
		return
	}
	h.ws.Serve(c, util.NewID(), userID)
}

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
