package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MuhaiminulSajid16/image-to-text/internal/config"
	"github.com/MuhaiminulSajid16/image-to-text/internal/handler"
	"github.com/MuhaiminulSajid16/image-to-text/internal/service"
	"github.com/MuhaiminulSajid16/image-to-text/web"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

func New(cfg *config.Config, svc service.PrescriptionService, log *zap.Logger) (*Server, error) {
	router, err := NewRouter(cfg, svc, log)
	if err != nil {
		return nil, err
	}

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port))

	return server, nil
}

// NewRouter builds the gin engine with all routes and middleware.
func NewRouter(cfg *config.Config, svc service.PrescriptionService, log *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(), AccessLog(log), CORS(), Metrics())

	// The body cap equals the multipart memory budget, so uploads are
	// never spooled to temporary files.
	limit := bodyLimit(cfg)
	router.MaxMultipartMemory = limit

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	h := handler.NewHandler(svc, cfg, log)

	router.GET("/", h.GetUI)
	router.GET("/health", h.HealthCheck)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	uploads := router.Group("/", BodyLimit(limit))
	uploads.POST("/upload_image/", h.UploadImage)
	uploads.POST("/upload_multiple_images/", h.UploadMultipleImages)

	return router, nil
}

// bodyLimit is the largest upload request accepted: a full batch plus one
// file's worth of room for multipart framing and form fields.
func bodyLimit(cfg *config.Config) int64 {
	return cfg.App.MaxUploadSize * int64(max(1, cfg.Batch.MaxFiles)+1)
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
