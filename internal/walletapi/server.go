package walletapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run serves the wallet API until ctx is cancelled, then drains in-flight
// requests within cfg.ShutdownTimeout.
func Run(ctx context.Context, cfg Config, service Service, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if service == nil {
		return errors.New("walletapi: service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := setupRouter(cfg, service, logger)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("wallet api listening", zap.String("addr", cfg.ListenAddr), zap.String("environment", cfg.Environment))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve wallet api: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown wallet api: %w", err)
	}
	return <-errCh
}

func setupRouter(cfg Config, service Service, logger *zap.Logger) *gin.Engine {
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
	}))

	handler := &httpHandler{service: service, cfg: cfg, logger: logger}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/customers", handler.handleRegisterCustomer)
		api.GET("/customers", handler.handleListCustomers)
		api.GET("/credit-lines", handler.handleListCreditLines)
		api.POST("/credit-lines/open", handler.handleOpenCreditLine)
		api.POST("/credit-lines/send-balance", handler.handleSendBalance)
		api.POST("/credit-lines/generate-token-total-debt", handler.handleGenerateToken)
		api.POST("/credit-lines/debt-credit-line", handler.handleRedeemToken)
	}

	ws := router.Group("/ws")
	{
		ws.POST("/customers/soap/create", handler.handleSoapRegisterCustomer)
		ws.GET("/customers/soap/index", handler.handleSoapListCustomers)
		ws.GET("/credit-lines/soap/index", handler.handleSoapListCreditLines)
		ws.POST("/credit-lines/soap/send-balance", handler.handleSoapSendBalance)
		ws.POST("/credit-lines/soap/generate-token-total-debt", handler.handleSoapGenerateToken)
		ws.POST("/credit-lines/soap/debt-credit-line", handler.handleSoapRedeemToken)
	}

	return router
}
