package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

// Run boots the HTTP API using the supplied configuration and service.
func Run(ctx context.Context, cfg Config, service *envelope.Service, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	router := setupRouter(cfg, handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("budget api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func setupRouter(cfg Config, handler *httpHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(sessionMiddleware(cfg))

	api.GET("/config", handler.handleConfig)
	api.GET("/envelopes", handler.handleListEnvelopes)
	api.POST("/envelopes", handler.handleCreateEnvelope)
	api.PATCH("/envelopes/:id", handler.handlePatchEnvelope)
	api.POST("/envelopes/:id/archive", handler.handleArchiveEnvelope)
	api.GET("/income-sources", handler.handleListIncomeSources)
	api.POST("/income-sources", handler.handleCreateIncomeSource)
	api.PATCH("/income-sources/:id", handler.handlePatchIncomeSource)
	api.GET("/envelope-income-allocations", handler.handleListAllocations)
	api.POST("/envelope-income-allocations", handler.handleReplaceAllocations)
	api.GET("/onboarding/draft", handler.handleGetDraft)
	api.POST("/onboarding/draft", handler.handleSaveDraft)
	api.DELETE("/onboarding/draft", handler.handleDeleteDraft)

	return router
}

type httpHandler struct {
	logger  *zap.Logger
	service *envelope.Service
	cfg     Config
}

func (handler *httpHandler) handleConfig(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"enhanced":  handler.cfg.Features.Enhanced,
		"view_mode": string(handler.cfg.Features.ViewMode),
	})
}

func (handler *httpHandler) handleListEnvelopes(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	snapshot, err := handler.loadSnapshot(ctx, userID)
	if err != nil {
		handler.respondServiceError(ctx, "envelope list failed", err)
		return
	}
	payload := make([]envelopePayload, 0, len(snapshot.Envelopes))
	for _, record := range snapshot.Envelopes {
		payload = append(payload, toEnvelopePayload(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"envelopes": payload})
}

func (handler *httpHandler) handleCreateEnvelope(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request envelopePayload
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	record, err := fromEnvelopePayload(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	created, err := handler.service.CreateEnvelope(requestCtx, userID, record)
	if err != nil {
		handler.respondServiceError(ctx, "envelope create failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"envelope": toEnvelopePayload(created)})
}

func (handler *httpHandler) handlePatchEnvelope(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	envelopeID, err := envelope.NewEnvelopeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_envelope_id", "envelope id is required"))
		return
	}
	var fields map[string]any
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON object of fields"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.PatchEnvelope(requestCtx, userID, envelopeID, fields); err != nil {
		handler.respondServiceError(ctx, "envelope patch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleArchiveEnvelope(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	envelopeID, err := envelope.NewEnvelopeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_envelope_id", "envelope id is required"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.ArchiveEnvelope(requestCtx, userID, envelopeID); err != nil {
		handler.respondServiceError(ctx, "envelope archive failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleListIncomeSources(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	snapshot, err := handler.loadSnapshot(ctx, userID)
	if err != nil {
		handler.respondServiceError(ctx, "income source list failed", err)
		return
	}
	payload := make([]incomeSourcePayload, 0, len(snapshot.IncomeSources))
	for _, source := range snapshot.IncomeSources {
		payload = append(payload, toIncomeSourcePayload(source))
	}
	ctx.JSON(http.StatusOK, gin.H{"income_sources": payload})
}

func (handler *httpHandler) handleCreateIncomeSource(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request incomeSourcePayload
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	record, err := fromIncomeSourcePayload(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	created, err := handler.service.CreateIncomeSource(requestCtx, userID, record)
	if err != nil {
		handler.respondServiceError(ctx, "income source create failed", err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"income_source": toIncomeSourcePayload(created)})
}

func (handler *httpHandler) handlePatchIncomeSource(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	sourceID, err := envelope.NewIncomeSourceID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_source_id", "income source id is required"))
		return
	}
	var fields map[string]any
	if err := ctx.ShouldBindJSON(&fields); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON object of fields"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.PatchIncomeSource(requestCtx, userID, sourceID, fields); err != nil {
		handler.respondServiceError(ctx, "income source patch failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleListAllocations(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	snapshot, err := handler.loadSnapshot(ctx, userID)
	if err != nil {
		handler.respondServiceError(ctx, "allocation list failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"allocations": toAllocationsPayload(snapshot.Allocations)})
}

func (handler *httpHandler) handleReplaceAllocations(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request replaceAllocationsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	envelopeID, err := envelope.NewEnvelopeID(request.EnvelopeID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_envelope_id", "envelope_id is required"))
		return
	}
	allocations := envelope.AllocationMap{}
	for _, entry := range request.Allocations {
		sourceID, err := envelope.NewIncomeSourceID(entry.IncomeSourceID)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_source_id", "income_source_id is required"))
			return
		}
		allocations[sourceID] = entry.AllocationAmount.Decimal
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.ReplaceAllocations(requestCtx, userID, envelopeID, allocations); err != nil {
		handler.respondServiceError(ctx, "allocation replace failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleGetDraft(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	draft, err := handler.service.LoadDraft(requestCtx, userID)
	if err != nil {
		if errors.Is(err, envelope.ErrDraftNotFound) {
			ctx.JSON(http.StatusNotFound, errorResponse("draft_not_found", "no onboarding draft"))
			return
		}
		handler.respondServiceError(ctx, "draft load failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"draft": toDraftPayload(draft)})
}

func (handler *httpHandler) handleSaveDraft(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	var request draftPayload
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	draft, err := fromDraftPayload(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.SaveDraft(requestCtx, userID, draft); err != nil {
		handler.respondServiceError(ctx, "draft save failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) handleDeleteDraft(ctx *gin.Context) {
	userID, ok := currentUserID(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return
	}
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	if err := handler.service.DeleteDraft(requestCtx, userID); err != nil {
		handler.respondServiceError(ctx, "draft delete failed", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (handler *httpHandler) loadSnapshot(ctx *gin.Context, userID envelope.UserID) (envelope.Snapshot, error) {
	requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
	defer cancel()
	return handler.service.Snapshot(requestCtx, userID)
}

func (handler *httpHandler) respondServiceError(ctx *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, envelope.ErrUnknownEnvelope), errors.Is(err, envelope.ErrUnknownIncomeSource), errors.Is(err, envelope.ErrDraftNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", err.Error()))
	case errors.Is(err, envelope.ErrEnvelopeExists):
		ctx.JSON(http.StatusConflict, errorResponse("conflict", err.Error()))
	case errors.Is(err, envelope.ErrInvalidField),
		errors.Is(err, envelope.ErrInvalidSubtype),
		errors.Is(err, envelope.ErrInvalidPriority),
		errors.Is(err, envelope.ErrInvalidFrequency):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", err.Error()))
	default:
		handler.logger.Error(message, zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", message))
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
