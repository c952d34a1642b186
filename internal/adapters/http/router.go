package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dmaslov/classhub/internal/adapters/signal"
	"github.com/dmaslov/classhub/internal/app"
	"github.com/dmaslov/classhub/internal/config"
	"github.com/dmaslov/classhub/internal/domain"
	"github.com/dmaslov/classhub/internal/storage"
)

const (
	sessionName = "ClasshubSession"

	keyName    = "name"
	keyContact = "contact"
	keyRole    = "role"
)

// joinRequest is validated by gin's binding layer before the identity is
// stored in the cookie session.
type joinRequest struct {
	Name    string `json:"name" binding:"required,max=36"`
	Contact string `json:"contact" binding:"max=128"`
	Role    string `json:"role" binding:"omitempty,oneof=presenter attendee"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, router *app.Router, store *storage.RosterStore) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, cookieStore))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	ctrl := signal.NewWSController(router, cfg)

	api.POST("/join", func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sess := sessions.Default(c)
		sess.Set(keyName, req.Name)
		sess.Set(keyContact, req.Contact)
		sess.Set(keyRole, req.Role)
		if err := sess.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.GET("/ws", func(c *gin.Context) {
		cid := domain.ConnectionID(uuid.NewString())
		sess := sessions.Default(c)
		ident := signal.Identity{
			Name:    sessionString(sess, keyName),
			Contact: sessionString(sess, keyContact),
			Role:    sessionString(sess, keyRole),
		}
		ctrl.HandleSession(ctx, c, cid, ident)
	})

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"online":         router.OnlineCount(),
			"lecture_active": router.LectureActive(),
		})
	})

	api.GET("/registrants", func(c *gin.Context) {
		if store == nil {
			c.JSON(http.StatusOK, gin.H{"registrants": []storage.Registrant{}})
			return
		}
		list, err := store.List()
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("registrant list failed")
			c.JSON(http.StatusOK, gin.H{"registrants": []storage.Registrant{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"registrants": list})
	})

	return r
}

func sessionString(s sessions.Session, key string) string {
	if v, ok := s.Get(key).(string); ok {
		return v
	}
	return ""
}
