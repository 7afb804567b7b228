package api

import (
	"net/http"

	"github.com/cyverse-de/skill-swap/model"
	"github.com/gin-gonic/gin"
)

// SubmitSwapRequest is the body of a request to create a swap request.
type SubmitSwapRequest struct {
	ReceiverID     string `json:"receiverId"`
	OfferedSkill   string `json:"offeredSkill"`
	RequestedSkill string `json:"requestedSkill"`
	Message        string `json:"message"`
}

// FeedbackRequest is the body of a request to give feedback for a completed swap.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

type swapQuery struct {
	Role   string `form:"role"`
	Status string `form:"status"`
	Limit  uint64 `form:"limit"`
	Offset uint64 `form:"offset"`
}

func (a *API) submitSwap(c *gin.Context) {
	var body SubmitSwapRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.badRequest(c, err)
		return
	}

	req, err := a.engine.Submit(
		c.Request.Context(), caller(c), body.ReceiverID, body.OfferedSkill, body.RequestedSkill, body.Message,
	)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func (a *API) listSwaps(c *gin.Context) {
	var query swapQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		a.badRequest(c, err)
		return
	}

	requests, err := a.engine.List(c.Request.Context(), caller(c), model.SwapFilter{
		Role:   model.SwapRole(query.Role),
		Status: model.SwapStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"swaps": requests})
}

func (a *API) getSwap(c *gin.Context) {
	req, err := a.engine.Get(c.Request.Context(), c.Param("id"), caller(c))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

type transitionFunc func(*API, *gin.Context) (*model.SwapRequest, error)

func (a *API) transition(c *gin.Context, fn transitionFunc) {
	req, err := fn(a, c)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (a *API) acceptSwap(c *gin.Context) {
	a.transition(c, func(a *API, c *gin.Context) (*model.SwapRequest, error) {
		return a.engine.Accept(c.Request.Context(), c.Param("id"), caller(c))
	})
}

func (a *API) rejectSwap(c *gin.Context) {
	a.transition(c, func(a *API, c *gin.Context) (*model.SwapRequest, error) {
		return a.engine.Reject(c.Request.Context(), c.Param("id"), caller(c))
	})
}

func (a *API) cancelSwap(c *gin.Context) {
	a.transition(c, func(a *API, c *gin.Context) (*model.SwapRequest, error) {
		return a.engine.Cancel(c.Request.Context(), c.Param("id"), caller(c))
	})
}

func (a *API) completeSwap(c *gin.Context) {
	a.transition(c, func(a *API, c *gin.Context) (*model.SwapRequest, error) {
		return a.engine.Complete(c.Request.Context(), c.Param("id"), caller(c))
	})
}

func (a *API) giveFeedback(c *gin.Context) {
	var body FeedbackRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.badRequest(c, err)
		return
	}

	feedback, err := a.engine.GiveFeedback(c.Request.Context(), c.Param("id"), caller(c), body.Rating, body.Comment)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, feedback)
}
