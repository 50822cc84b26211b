// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, receipts, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/docuchat/go-pdf-chat-backend/internal/billing"
	"github.com/docuchat/go-pdf-chat-backend/internal/chunker"
	"github.com/docuchat/go-pdf-chat-backend/internal/config"
	"github.com/docuchat/go-pdf-chat-backend/internal/domain"
	"github.com/docuchat/go-pdf-chat-backend/internal/embedding"
	"github.com/docuchat/go-pdf-chat-backend/internal/http/handlers"
	"github.com/docuchat/go-pdf-chat-backend/internal/http/middleware"
	"github.com/docuchat/go-pdf-chat-backend/internal/llm"
	"github.com/docuchat/go-pdf-chat-backend/internal/pdftext"
	"github.com/docuchat/go-pdf-chat-backend/internal/rag"
	"github.com/docuchat/go-pdf-chat-backend/internal/repo"
	"github.com/docuchat/go-pdf-chat-backend/internal/services"
	"github.com/docuchat/go-pdf-chat-backend/internal/storage"
	"github.com/docuchat/go-pdf-chat-backend/internal/vectorindex"
)

// Deps bundles the external collaborators injected into the service layer.
// Interfaces are used throughout so router tests can install fakes.
type Deps struct {
	Index     vectorindex.Index
	Embedder  embedding.Embedder
	Completer llm.Completer
	Blobs     storage.BlobStore
	Extractor pdftext.Extractor
}

// documentRepoShim adapts the repository free functions to the
// services.DocumentRepo interface. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type documentRepoShim struct{}

func (documentRepoShim) CreateDocument(ctx context.Context, db *gorm.DB, userID, fileID, name, contentType string, size int64) (*domain.Document, error) {
	return repo.CreateDocument(ctx, db, userID, fileID, name, contentType, size)
}

func (documentRepoShim) GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	return repo.GetDocument(ctx, db, id, userID)
}

func (documentRepoShim) CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountDocuments(ctx, db, userID)
}

func (documentRepoShim) ListDocumentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Document, error) {
	return repo.ListDocumentsPage(ctx, db, userID, offset, limit)
}

func (documentRepoShim) DeleteDocument(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteDocument(ctx, db, id, userID)
}

// questionRepoShim adapts repo free functions to services.QuestionRepo.
type questionRepoShim struct{}

func (questionRepoShim) GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	return repo.GetDocument(ctx, db, id, userID)
}

func (questionRepoShim) CreateMessage(ctx context.Context, db *gorm.DB, documentID, userID, role, message string) (*domain.ChatMessage, error) {
	return repo.CreateMessage(ctx, db, documentID, userID, role, message)
}

func (questionRepoShim) CountMessages(ctx context.Context, db *gorm.DB, documentID string) (int64, error) {
	return repo.CountMessages(ctx, db, documentID)
}

func (questionRepoShim) ListMessagesPage(ctx context.Context, db *gorm.DB, documentID string, offset, limit int) ([]domain.ChatMessage, error) {
	return repo.ListMessagesPage(ctx, db, documentID, offset, limit)
}

// quotaRepoShim adapts repo free functions to services.QuotaRepo.
type quotaRepoShim struct{}

func (quotaRepoShim) CountMessagesByRole(ctx context.Context, db *gorm.DB, documentID, userID, role string) (int64, error) {
	return repo.CountMessagesByRole(ctx, db, documentID, userID, role)
}

func (quotaRepoShim) HasActiveMembership(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	return repo.HasActiveMembership(ctx, db, userID)
}

// historyRepoShim adapts repo free functions to services.HistoryRepo.
type historyRepoShim struct{}

func (historyRepoShim) ListRecentMessages(ctx context.Context, db *gorm.DB, documentID string, n int) ([]domain.ChatMessage, error) {
	return repo.ListRecentMessages(ctx, db, documentID, n)
}

// membershipShim adapts repo free functions to billing.MembershipStore.
type membershipShim struct{}

func (membershipShim) SetMembershipByCustomer(ctx context.Context, db *gorm.DB, customerID string, active bool) error {
	return repo.SetMembershipByCustomer(ctx, db, customerID, active)
}

// subscriptionRepoShim adapts repo free functions to services.SubscriptionRepo.
type subscriptionRepoShim struct{}

func (subscriptionRepoShim) HasActiveMembership(ctx context.Context, db *gorm.DB, userID string) (bool, error) {
	return repo.HasActiveMembership(ctx, db, userID)
}

func (subscriptionRepoShim) CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountDocuments(ctx, db, userID)
}

func (subscriptionRepoShim) GetUserByBillingCustomer(ctx context.Context, db *gorm.DB, customerID string) (*domain.UserAccount, error) {
	return repo.GetUserByBillingCustomer(ctx, db, customerID)
}

func (subscriptionRepoShim) UpsertUserAccount(ctx context.Context, db *gorm.DB, userID, customerID string) (*domain.UserAccount, error) {
	return repo.UpsertUserAccount(ctx, db, userID, customerID)
}

// gormReceipts backs the handler ReceiptStore with the receipts table.
type gormReceipts struct{ db *gorm.DB }

func (s gormReceipts) Get(ctx context.Context, userID, documentID, key string, now time.Time) (*domain.AskReceipt, error) {
	return repo.GetReceipt(ctx, s.db, userID, documentID, key, now)
}

func (s gormReceipts) Create(ctx context.Context, userID, documentID, key, messageID string, ttl time.Duration) (*domain.AskReceipt, error) {
	return repo.CreateReceipt(ctx, s.db, userID, documentID, key, messageID, ttl)
}

func (s gormReceipts) GetMessage(ctx context.Context, id string) (*domain.ChatMessage, error) {
	return repo.GetMessage(ctx, s.db, id)
}

// gormStats backs the handler StatsProvider with count/latest aggregates.
type gormStats struct{ db *gorm.DB }

func (s gormStats) DocumentsStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.DocumentsStats(ctx, s.db, userID)
}

func (s gormStats) MessagesStats(ctx context.Context, documentID string) (int64, *time.Time, error) {
	return repo.MessagesStats(ctx, s.db, documentID)
}

// anyOwnerDocSource adapts the ownerless document lookup to rag.DocumentSource.
// Ownership was already checked at the pipeline boundary; embeddings are keyed
// by document id alone.
type anyOwnerDocSource struct{ db *gorm.DB }

func (s anyOwnerDocSource) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	return repo.GetDocumentAnyOwner(ctx, s.db, id)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), receipts and rate limiting, CORS
// and security headers, health and metrics endpoints, and the versioned
// public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (uploads are the largest payloads)
//  6. Gzip response compression
//  7. Metrics
//  8. Receipt validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit; sized for PDF uploads
	r.Use(limitBody(cfg.BlobLimit))

	// 6) Response compression (answers and conversation lists are texty)
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Receipt validation (before rate limiting)
	r.Use(middleware.ReceiptValidator(
		middleware.ReceiptOptions{MaxLen: 200},
		func(ctx context.Context, userID, documentID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetReceipt(ctx, db, userID, documentID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/collaborators
	stores := &rag.StoreBuilder{
		Index:     deps.Index,
		Embedder:  deps.Embedder,
		Chunker:   chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Extractor: deps.Extractor,
		Documents: anyOwnerDocSource{db: db},
		Blobs:     deps.Blobs,
		TopK:      cfg.RAG.TopK,
	}
	answerer := &rag.Answerer{Completer: deps.Completer}

	quotaSvc := &services.QuotaService{
		DB:        db,
		Repo:      quotaRepoShim{},
		FreeLimit: cfg.Quota.FreeLimit,
		ProLimit:  cfg.Quota.ProLimit,
	}
	historySvc := &services.HistoryService{
		DB:       db,
		Repo:     historyRepoShim{},
		MaxTurns: cfg.RAG.HistoryMaxTurns,
	}
	questionSvc := &services.QuestionService{
		DB:               db,
		Repo:             questionRepoShim{},
		Quota:            quotaSvc,
		History:          historySvc,
		Stores:           stores,
		Answerer:         answerer,
		MaxQuestionRunes: 4000,
	}
	subsSvc := &services.SubscriptionService{
		DB:           db,
		Repo:         subscriptionRepoShim{},
		FreeDocLimit: cfg.Quota.FreeDocLimit,
		ProDocLimit:  cfg.Quota.ProDocLimit,
	}
	docSvc := services.NewDocumentService(db, documentRepoShim{}, deps.Blobs, stores, subsSvc)
	webhook := billing.NewProcessor(db, membershipShim{}, cfg.Billing.WebhookSecret, cfg.Billing.Tolerance)

	h := handlers.New(docSvc, questionSvc, subsSvc, webhook, handlers.Options{
		Receipts:         gormReceipts{db: db},
		Stats:            gormStats{db: db},
		MaxQuestionRunes: questionSvc.MaxQuestionRunes,
		ReceiptTTL:       cfg.ReceiptTTL,
	})

	// Public API. User-facing routes require a resolved identity; the billing
	// webhook is provider-to-server and carries no user header.
	api := groupWithPrefix(r, cfg.APIBasePath)
	identity := middleware.Identity(middleware.IdentityOptions{
		Required: cfg.AuthRequired,
		DemoUser: cfg.AuthDemoUser,
	})
	{
		authed := api.Group("", identity)

		docs := authed.Group("/documents")
		docs.POST("", h.UploadDocument)
		docs.GET("", h.ListDocuments)
		docs.GET("/:id", h.GetDocument)
		docs.DELETE("/:id", h.DeleteDocument)

		// Questions & conversation
		docs.POST("/:id/questions", h.AskQuestion)
		docs.GET("/:id/messages", h.ListConversation)

		// Subscription state and the checkout-time customer link
		authed.GET("/subscription", h.SubscriptionStatus)
		authed.POST("/billing/customer", h.LinkBillingCustomer)

		// Billing webhook (provider-signed, unauthenticated)
		api.POST("/billing/webhook", h.BillingWebhook)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap cause downstream body
// reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
