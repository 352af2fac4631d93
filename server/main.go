package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/kardianos/service"
	"golang.org/x/time/rate"

	"github.com/zhaobenny/aobatop/internal/config"
	"github.com/zhaobenny/aobatop/internal/logger"
	"github.com/zhaobenny/aobatop/server/internal/handlers"
	"github.com/zhaobenny/aobatop/server/internal/middleware"
	"github.com/zhaobenny/aobatop/server/internal/templates"
)

const shutdownTimeout = 10 * time.Second

// serverConfig holds the HTTP settings read from the environment
type serverConfig struct {
	Port           string
	MaxUploadMB    int64
	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool
}

func loadServerConfig() (serverConfig, error) {
	cfg := serverConfig{Port: getEnv("PORT", "8080")}

	mb, err := strconv.ParseInt(getEnv("MAX_UPLOAD_MB", "32"), 10, 64)
	if err != nil || mb <= 0 {
		return cfg, fmt.Errorf("invalid MAX_UPLOAD_MB %q", os.Getenv("MAX_UPLOAD_MB"))
	}
	cfg.MaxUploadMB = mb

	rps, err := strconv.ParseFloat(getEnv("RATE_LIMIT_RPS", "1"), 64)
	if err != nil || rps <= 0 {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_RPS %q", os.Getenv("RATE_LIMIT_RPS"))
	}
	cfg.RateLimitRPS = rps

	burst, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "5"))
	if err != nil || burst <= 0 {
		return cfg, fmt.Errorf("invalid RATE_LIMIT_BURST %q", os.Getenv("RATE_LIMIT_BURST"))
	}
	cfg.RateLimitBurst = burst

	trust, err := strconv.ParseBool(getEnv("TRUST_PROXY", "false"))
	if err != nil {
		return cfg, fmt.Errorf("invalid TRUST_PROXY %q", os.Getenv("TRUST_PROXY"))
	}
	cfg.TrustProxy = trust

	return cfg, nil
}

// newRouter wires the handlers and middleware
func newRouter(h *handlers.Handler, limiter *middleware.IPRateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", h.Index)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.Handle("POST /report", limiter.Limit(http.HandlerFunc(h.Report)))
	mux.Handle("POST /api/report", limiter.Limit(http.HandlerFunc(h.APIReport)))

	return middleware.RequestID(middleware.Logging(middleware.SecurityHeaders(mux)))
}

// program implements service.Interface around the HTTP server
type program struct {
	srv     *http.Server
	limiter *middleware.IPRateLimiter
	cancel  context.CancelFunc
	svcLog  service.Logger
}

func newProgram() (*program, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	srvCfg, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	tmpl, err := templates.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	maxUpload := srvCfg.MaxUploadMB << 20
	limiter := middleware.NewIPRateLimiter(rate.Limit(srvCfg.RateLimitRPS), srvCfg.RateLimitBurst, 10*time.Minute)
	limiter.TrustForwarded = srvCfg.TrustProxy
	h := handlers.New(cfg, tmpl, maxUpload)

	return &program{
		srv: &http.Server{
			Addr:              ":" + srvCfg.Port,
			Handler:           newRouter(h, limiter),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       2 * time.Minute,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       time.Minute,
		},
		limiter: limiter,
	}, nil
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.limiter.Run(ctx, time.Minute)

	go func() {
		logger.Info("starting aobatop-server", "addr", p.srv.Addr)
		if err := p.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			if p.svcLog != nil {
				p.svcLog.Error(err)
			}
			os.Exit(1)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down aobatop-server")
	return p.srv.Shutdown(ctx)
}

func main() {
	logger.Setup(os.Stderr, slog.LevelInfo)
	if os.Getenv("AOBATOP_DEBUG") != "" {
		logger.Setup(os.Stderr, slog.LevelDebug)
	}

	command := "run"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	prg, err := newProgram()
	if err != nil {
		log.Fatalf("Failed to configure server: %v", err)
	}

	svcConfig := &service.Config{
		Name:        "aobatop-server",
		DisplayName: "aobatop report server",
		Description: "Turns uploaded AOBA usage journals into usage and billing reports",
		Arguments:   []string{"run"},
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch command {
	case "install":
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Println("Service installed and started.")

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")

	case "uninstall":
		_ = s.Stop()
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}

	case "run":
		if svcLog, err := s.Logger(nil); err == nil {
			prg.svcLog = svcLog
		}
		if err := s.Run(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "Usage: aobatop-server [run|install|start|stop|uninstall|status]\n")
		os.Exit(2)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
