package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"qrcheckin-backend/checkin"
	"qrcheckin-backend/logging"
	"qrcheckin-backend/metrics"
	"qrcheckin-backend/notify"
	"qrcheckin-backend/qrtoken"
	"qrcheckin-backend/roster"
)

// DefaultCORSOrigins is used when no origin is configured.
var DefaultCORSOrigins = []string{"http://localhost:3000"}

// Limits applies per client IP. Zero values disable a limiter.
type Limits struct {
	ScansPerMinute       int
	EventsCreatedPerHour int
}

type Dependencies struct {
	Store      Store
	CheckIns   *checkin.Service
	Stats      *checkin.StatsService
	Codec      *qrtoken.Codec
	Publisher  notify.Publisher
	Subscriber Subscriber
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger

	TokenTTL      time.Duration
	EventLifetime time.Duration
	Location      *time.Location
	CORSOrigins   []string
	Limits        Limits
	// HealthChecks run on /api/health in addition to the store ping.
	HealthChecks map[string]func(context.Context) error
}

func NewRouter(d Dependencies) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonFieldName)
		if err := roster.RegisterValidations(v); err != nil {
			d.Logger.Error("failed to register validations", "error", err)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(d.Logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(d.CORSOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	eventHandler := NewEventHandler(d.Store, d.Logger, d.EventLifetime, nil)
	guestHandler := NewGuestHandler(d.Store, d.Codec, d.TokenTTL, d.Metrics, d.Publisher, d.Logger)
	checkinHandler := NewCheckinHandler(d.CheckIns, d.Stats, d.Store, d.Subscriber, d.Logger)
	exportHandler := NewExportHandler(d.Store, d.Location, d.Logger)
	requireEvent := RequireEvent(d.Store, d.EventLifetime, nil)

	createLimit := limiter(d.Limits.EventsCreatedPerHour, time.Hour)
	scanLimit := limiter(d.Limits.ScansPerMinute, time.Minute)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/create-event", createLimit, eventHandler.CreateEvent)
		auth.POST("/verify-admin", eventHandler.VerifyAdmin)

		events := api.Group("/events/:adminCode", requireEvent)
		events.GET("", eventHandler.GetEvent)
		events.PUT("", eventHandler.UpdateEvent)
		events.DELETE("", eventHandler.DeactivateEvent)

		guests := api.Group("/guests/:adminCode", requireEvent)
		guests.GET("", guestHandler.ListGuests)
		guests.POST("/add-single", guestHandler.AddGuest)
		guests.POST("/import-csv", guestHandler.ImportCSV)
		guests.POST("/generate-qr", guestHandler.GenerateQR)
		guests.PUT("/:guestId", guestHandler.UpdateGuest)
		guests.DELETE("/:guestId", guestHandler.DeleteGuest)
		guests.GET("/:guestId/qr.png", guestHandler.QRImage)

		checkins := api.Group("/checkin/:adminCode", requireEvent)
		checkins.POST("/validate", scanLimit, checkinHandler.Validate)
		checkins.POST("/manual", scanLimit, checkinHandler.Manual)
		checkins.GET("/stats", checkinHandler.Stats)
		checkins.GET("/search", checkinHandler.Search)
		checkins.GET("/live", checkinHandler.Live)

		exports := api.Group("/export/:adminCode", requireEvent)
		exports.GET("/qr-codes", exportHandler.QRCodes)
		exports.GET("/guest-list", exportHandler.GuestList)
		exports.GET("/attendance", exportHandler.Attendance)
		exports.GET("/report", exportHandler.Report)

		api.GET("/health", health(d.Store, d.HealthChecks))
	}

	if d.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

func allowedOrigins(configured []string) []string {
	var origins []string
	for _, o := range configured {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return DefaultCORSOrigins
	}
	return origins
}

func limiter(n int, per time.Duration) gin.HandlerFunc {
	if n <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	return RateLimit(rate.Limit(float64(n)/per.Seconds()), n)
}

func health(s Store, checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := gin.H{"database": "ok"}
		if err := s.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results["database"] = err.Error()
		}
		for name, check := range checks {
			results[name] = "ok"
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
			}
		}
		c.JSON(status, gin.H{
			"status":    http.StatusText(status),
			"checks":    results,
			"timestamp": time.Now().Unix(),
		})
	}
}
