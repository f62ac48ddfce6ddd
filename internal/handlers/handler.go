package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"timecourse_control/internal/logger"
	"timecourse_control/internal/service"
)

// Options holds request defaults taken from configuration.
type Options struct {
	// DefaultInclusive is the horizon window policy used when a request
	// names none.
	DefaultInclusive string
}

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
	opts     Options
}

func NewHandler(services *service.Service, log *logger.Logger, opts Options) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{services: services, log: log, opts: opts}
}

// InitRoutes builds the router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.observe)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerProblemRoutes(api)
		h.registerHorizonRoutes(api)
	}
}

func (h *Handler) registerProblemRoutes(api *gin.RouterGroup) {
	problems := api.Group("/problems")
	{
		problems.POST("", h.compileProblem)
		problems.GET("", h.listProblems)
		problems.GET("/:id", h.getProblem)
		problems.POST("/:id/objective", h.evaluateObjective)
		problems.GET("/:id/evaluations", h.listEvaluations)
	}
}

func (h *Handler) registerHorizonRoutes(api *gin.RouterGroup) {
	api.POST("/horizon/:variant", h.truncateHorizon)
}
