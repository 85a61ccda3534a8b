// Package api serves the control surface of a running world over HTTP and
// uploads finished recordings to a replay web service.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/beamsim/beamsim/internal/world"
	"github.com/beamsim/beamsim/pkg/core"
	"github.com/gin-gonic/gin"
	"github.com/go-gl/mathgl/mgl32"
)

// Controller is the part of the world the API drives.
type Controller interface {
	Spawn(req core.SpawnRequest) (core.ActorID, error)
	Remove(id core.ActorID) error
	Reset(id core.ActorID) error
	SetInput(id core.ActorID, in core.InputSnapshot) error
	ToggleHooks(id core.ActorID, group int) error
	AddAffector(req core.AffectorRequest) (core.AffectorID, error)
	MoveAffector(actorID core.ActorID, id core.AffectorID, pin mgl32.Vec3) error
	RemoveAffector(actorID core.ActorID, id core.AffectorID) error
	SetGravity(g mgl32.Vec3) error
	Pause() error
	Resume() error
	Latest() *core.Snapshot
	Stats() world.Stats
}

// Server is the gin control server.
type Server struct {
	ctrl   Controller
	log    *slog.Logger
	engine *gin.Engine
	srv    *http.Server
}

// NewServer builds the routes. An empty secret disables authentication.
func NewServer(ctrl Controller, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ctrl:   ctrl,
		log:    logger.With("component", "api"),
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())

	v1 := s.engine.Group("/api/v1")
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := v1.Group("")
	if secret != "" {
		authed.Use(AuthMiddleware(secret))
	}
	{
		authed.GET("/status", s.status)
		authed.GET("/snapshot", s.snapshot)
		authed.GET("/snapshot/:id", s.actorSnapshot)

		authed.POST("/actors", s.spawn)
		authed.DELETE("/actors/:id", s.remove)
		authed.POST("/actors/:id/reset", s.reset)
		authed.PUT("/actors/:id/input", s.input)
		authed.POST("/actors/:id/hooks", s.hooks)
		authed.POST("/actors/:id/affectors", s.addAffector)
		authed.PUT("/actors/:id/affectors/:aff", s.moveAffector)
		authed.DELETE("/actors/:id/affectors/:aff", s.removeAffector)

		authed.PUT("/gravity", s.gravity)
		authed.POST("/pause", s.pause)
		authed.POST("/resume", s.resume)
	}
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.srv = &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server stopped", "error", err)
		}
	}()
	s.log.Info("api listening", "addr", ln.Addr().String())
	return ln.Addr(), nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

type spawnBody struct {
	Definition   string      `json:"definition" binding:"required"`
	Config       string      `json:"config"`
	Position     [3]float32  `json:"position"`
	Rotation     *[4]float32 `json:"rotation"`
	StartRunning *bool       `json:"startRunning"`
}

type affectorBody struct {
	Kind     string     `json:"kind" binding:"required"`
	Nodes    []int      `json:"nodes" binding:"required"`
	Pin      [3]float32 `json:"pin"`
	Force    [3]float32 `json:"force"`
	Spring   float32    `json:"spring"`
	Damping  float32    `json:"damping"`
	MinForce float32    `json:"minForce"`
	MaxForce float32    `json:"maxForce"`
	Ramp     float32    `json:"ramp"`
	Duration float32    `json:"duration"`
}

type vecBody struct {
	Value [3]float32 `json:"value"`
}

type hooksBody struct {
	Group int `json:"group"`
}

func parseAffectorKind(name string) (core.AffectorKind, bool) {
	for _, k := range []core.AffectorKind{core.AffectorMousePin, core.AffectorExternalPin, core.AffectorScriptedForce} {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

func actorParam(c *gin.Context) (core.ActorID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actor id"})
		return 0, false
	}
	return core.ActorID(id), true
}

func affectorParam(c *gin.Context) (core.AffectorID, bool) {
	id, err := strconv.ParseUint(c.Param("aff"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid affector id"})
		return 0, false
	}
	return core.AffectorID(id), true
}

// accepted answers a queued request. Requests are applied on the next tick
// so only closure of the world is reported synchronously.
func accepted(c *gin.Context, err error, body gin.H) {
	switch {
	case errors.Is(err, world.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if body == nil {
			body = gin.H{"status": "queued"}
		}
		c.JSON(http.StatusAccepted, body)
	}
}

func (s *Server) status(c *gin.Context) {
	st := s.ctrl.Stats()
	c.JSON(http.StatusOK, gin.H{
		"tick":     st.Tick,
		"actors":   st.Actors,
		"nodes":    st.Nodes,
		"beams":    st.Beams,
		"paused":   st.Paused,
		"spawned":  st.Spawned,
		"rejected": st.Rejected,
	})
}

func (s *Server) snapshot(c *gin.Context) {
	snap := s.ctrl.Latest()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) actorSnapshot(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	snap := s.ctrl.Latest()
	if snap == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot yet"})
		return
	}
	a, found := snap.Actor(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown actor"})
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) spawn(c *gin.Context) {
	var body spawnBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req := core.SpawnRequest{
		Definition:   body.Definition,
		Config:       body.Config,
		Position:     mgl32.Vec3(body.Position),
		Rotation:     mgl32.QuatIdent(),
		StartRunning: body.StartRunning,
	}
	if r := body.Rotation; r != nil {
		req.Rotation = mgl32.Quat{W: r[0], V: mgl32.Vec3{r[1], r[2], r[3]}}.Normalize()
	}
	id, err := s.ctrl.Spawn(req)
	accepted(c, err, gin.H{"id": id})
}

func (s *Server) remove(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	accepted(c, s.ctrl.Remove(id), nil)
}

func (s *Server) reset(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	accepted(c, s.ctrl.Reset(id), nil)
}

func (s *Server) input(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	var in core.InputSnapshot
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted(c, s.ctrl.SetInput(id, in), nil)
}

func (s *Server) hooks(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	var body hooksBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	accepted(c, s.ctrl.ToggleHooks(id, body.Group), nil)
}

func (s *Server) addAffector(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	var body affectorBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind, ok := parseAffectorKind(body.Kind)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown affector kind " + strconv.Quote(body.Kind)})
		return
	}
	aff, err := s.ctrl.AddAffector(core.AffectorRequest{
		Kind:     kind,
		Actor:    id,
		Nodes:    body.Nodes,
		Pin:      mgl32.Vec3(body.Pin),
		Force:    mgl32.Vec3(body.Force),
		Spring:   body.Spring,
		Damping:  body.Damping,
		MinForce: body.MinForce,
		MaxForce: body.MaxForce,
		Ramp:     body.Ramp,
		Duration: body.Duration,
	})
	accepted(c, err, gin.H{"id": aff})
}

func (s *Server) moveAffector(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	aff, ok := affectorParam(c)
	if !ok {
		return
	}
	var body vecBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted(c, s.ctrl.MoveAffector(id, aff, mgl32.Vec3(body.Value)), nil)
}

func (s *Server) removeAffector(c *gin.Context) {
	id, ok := actorParam(c)
	if !ok {
		return
	}
	aff, ok := affectorParam(c)
	if !ok {
		return
	}
	accepted(c, s.ctrl.RemoveAffector(id, aff), nil)
}

func (s *Server) gravity(c *gin.Context) {
	var body vecBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	accepted(c, s.ctrl.SetGravity(mgl32.Vec3(body.Value)), nil)
}

func (s *Server) pause(c *gin.Context)  { accepted(c, s.ctrl.Pause(), nil) }
func (s *Server) resume(c *gin.Context) { accepted(c, s.ctrl.Resume(), nil) }
