package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/codewandler/voicebridge-go"
	"github.com/codewandler/voicebridge-go/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// controller is the part of a VoiceSession the trigger routes drive.
type controller interface {
	Start(ctx context.Context) error
	Stop()
	Toggle(ctx context.Context) error
	Status() voicebridge.Status
}

type errorResponse struct {
	Error string `json:"error"`
}

func newRouter(ctl controller, m *metrics.Collector) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctl.Status())
	})

	session := engine.Group("/session")
	session.POST("/start", func(c *gin.Context) {
		respond(c, ctl, ctl.Start(c.Request.Context()))
	})
	session.POST("/stop", func(c *gin.Context) {
		ctl.Stop()
		respond(c, ctl, nil)
	})
	session.POST("/toggle", func(c *gin.Context) {
		respond(c, ctl, ctl.Toggle(c.Request.Context()))
	})

	if reg := m.Registry(); reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return engine
}

func respond(c *gin.Context, ctl controller, err error) {
	if err == nil {
		c.JSON(http.StatusOK, ctl.Status())
		return
	}

	code := http.StatusBadGateway
	var rerr *voicebridge.ResourceError
	switch {
	case errors.As(err, &rerr):
		code = http.StatusServiceUnavailable
	case errors.Is(err, voicebridge.ErrSessionStopped):
		code = http.StatusConflict
	}
	c.JSON(code, errorResponse{Error: err.Error()})
}
