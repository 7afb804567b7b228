package api

import (
	"net/http"

	"github.com/cyverse-de/skill-swap/common"
	"github.com/cyverse-de/skill-swap/model"
	"github.com/cyverse-de/skill-swap/notify"
	"github.com/gin-gonic/gin"
)

// internalTemplates lists the templates that trusted services may send through the internal endpoint. Swap
// lifecycle notifications are only ever sent by the swap engine.
var internalTemplates = map[notify.TemplateKey]bool{
	notify.TemplateSkillRemoved:       true,
	notify.TemplateAccountSuspended:   true,
	notify.TemplateAccountWarned:      true,
	notify.TemplateAccountReactivated: true,
	notify.TemplatePlatformMessage:    true,
}

// NotificationRequest is the body of a request from a trusted service to notify a user.
type NotificationRequest struct {
	User     string                 `json:"user"`
	Template notify.TemplateKey     `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

type notificationQuery struct {
	Unread bool   `form:"unread"`
	Type   string `form:"type"`
	Limit  uint64 `form:"limit"`
	Offset uint64 `form:"offset"`
}

func (a *API) sendNotification(c *gin.Context) {
	var body NotificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.badRequest(c, err)
		return
	}
	if !internalTemplates[body.Template] {
		a.fail(c, common.NewInvalidArgumentError("template %s can't be sent through this endpoint", body.Template))
		return
	}

	notification, err := a.dispatcher.Notify(c.Request.Context(), body.User, body.Template, body.Data)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, notification)
}

func (a *API) listNotifications(c *gin.Context) {
	var query notificationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		a.badRequest(c, err)
		return
	}
	notificationType := model.NotificationType(query.Type)
	if notificationType != "" && !notificationType.Valid() {
		a.fail(c, common.NewInvalidArgumentError("unknown notification type: %s", query.Type))
		return
	}

	notifications, err := a.dispatcher.List(c.Request.Context(), caller(c), model.NotificationFilter{
		UnreadOnly: query.Unread,
		Type:       notificationType,
		Limit:      query.Limit,
		Offset:     query.Offset,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// countResponse writes the caller's unread count, or the error that prevented computing it.
func (a *API) countResponse(c *gin.Context, count int64, err error) {
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (a *API) unreadCount(c *gin.Context) {
	count, err := a.dispatcher.UnreadCount(c.Request.Context(), caller(c))
	a.countResponse(c, count, err)
}

func (a *API) markRead(c *gin.Context) {
	count, err := a.dispatcher.MarkRead(c.Request.Context(), c.Param("id"), caller(c))
	a.countResponse(c, count, err)
}

func (a *API) markAllRead(c *gin.Context) {
	count, err := a.dispatcher.MarkAllRead(c.Request.Context(), caller(c))
	a.countResponse(c, count, err)
}

func (a *API) deleteNotification(c *gin.Context) {
	count, err := a.dispatcher.Delete(c.Request.Context(), c.Param("id"), caller(c))
	a.countResponse(c, count, err)
}

func (a *API) clearNotifications(c *gin.Context) {
	readOnly := c.Query("read") == "true"
	count, err := a.dispatcher.Clear(c.Request.Context(), caller(c), readOnly)
	a.countResponse(c, count, err)
}
