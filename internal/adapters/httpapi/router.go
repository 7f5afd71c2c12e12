// Package httpapi is the loopback control surface the (excluded) UI talks to.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mkhas/Rescue/internal/app"
	"github.com/mkhas/Rescue/internal/config"
	"github.com/mkhas/Rescue/internal/core"
	"github.com/mkhas/Rescue/internal/domain"
)

type Deps struct {
	Controller *app.Controller
	Mesh       *app.PeerMesh
	Chat       *app.ChatChannel
	Roster     *app.Roster
}

// SetupRouter wires the control API. Lifecycle operations run on appCtx so
// the session outlives the HTTP requests that started it.
func SetupRouter(appCtx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "httpapi").Int("port", cfg.Port).Msg("router setup")

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		s := d.Controller.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"id":             s.ID,
			"status":         s.Status.String(),
			"location":       s.Location,
			"startedAt":      s.StartedAt,
			"lastReportedAt": s.LastReportedAt,
			"peerCount":      len(d.Mesh.Peers()),
		})
	})

	api.POST("/session/start", func(c *gin.Context) {
		var body domain.Location
		var loc *domain.Location
		if err := c.ShouldBindJSON(&body); err == nil && (body.Latitude != 0 || body.Longitude != 0) {
			loc = &body
		}
		if err := d.Controller.Start(appCtx, loc); err != nil {
			c.JSON(statusFor(err), gin.H{"message": err.Error()})
			return
		}
		s := d.Controller.Snapshot()
		c.JSON(http.StatusOK, gin.H{"emergencyId": s.ID})
	})

	api.POST("/session/stop", func(c *gin.Context) {
		if err := d.Controller.Stop(appCtx); err != nil {
			c.JSON(statusFor(err), gin.H{"message": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	})

	api.GET("/peers", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Mesh.Peers())
	})

	api.GET("/chat", func(c *gin.Context) {
		c.JSON(http.StatusOK, d.Chat.Messages())
	})

	api.POST("/chat", func(c *gin.Context) {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}
		if err := d.Chat.Send(body.Text); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"message": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	})

	api.GET("/roster", func(c *gin.Context) {
		selected, _ := d.Roster.Selected()
		c.JSON(http.StatusOK, gin.H{
			"items":    d.Roster.Items(),
			"selected": selected.ID,
		})
	})

	api.POST("/roster/select", func(c *gin.Context) {
		var body struct {
			ID string `json:"id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "bad payload"})
			return
		}
		if !d.Roster.Select(domain.SessionID(body.ID)) {
			c.JSON(http.StatusNotFound, gin.H{"message": "session not listed"})
			return
		}
		c.Status(http.StatusOK)
	})

	api.POST("/roster/join", func(c *gin.Context) {
		var body struct {
			ID string `json:"id"`
		}
		_ = c.ShouldBindJSON(&body)
		id := domain.SessionID(body.ID)
		if id == "" {
			selected, ok := d.Roster.Selected()
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"message": "nothing selected"})
				return
			}
			id = selected.ID
		}
		if err := d.Controller.JoinRoom(appCtx, id); err != nil {
			c.JSON(statusFor(err), gin.H{"message": err.Error()})
			return
		}
		c.Status(http.StatusOK)
	})

	api.POST("/roster/leave", func(c *gin.Context) {
		d.Controller.LeaveRoom()
		c.Status(http.StatusOK)
	})

	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrCredentialExpired):
		return http.StatusUnauthorized
	case errors.Is(err, app.ErrSessionActive):
		return http.StatusConflict
	case errors.Is(err, core.ErrNoSession):
		return http.StatusNotFound
	case core.Transient(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
