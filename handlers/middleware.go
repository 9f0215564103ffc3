package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"qrcheckin-backend/checkin"
	"qrcheckin-backend/models"
	"qrcheckin-backend/store"
)

const eventKey = "event"

type eventFinder interface {
	FindEventByAdminCode(ctx context.Context, code string) (*models.Event, error)
}

// RequireEvent resolves the :adminCode parameter to an active event and stores
// it in the context. Codes are case-insensitive. Events older than lifetime
// are answered with 410.
func RequireEvent(events eventFinder, lifetime time.Duration, now func() time.Time) gin.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("adminCode")))
		if code == "" {
			respondError(c, http.StatusBadRequest, CodeValidation, "Admin code is required")
			return
		}
		event, err := events.FindEventByAdminCode(c.Request.Context(), code)
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusNotFound, CodeEventNotFound, "Event not found or inactive")
			return
		}
		if err != nil {
			respondInternal(c, err)
			return
		}
		if event.Expired(now(), lifetime) {
			respondError(c, http.StatusGone, CodeEventExpired, "This event has expired")
			return
		}
		c.Set(eventKey, event)
		c.Next()
	}
}

func currentEvent(c *gin.Context) *models.Event {
	return c.MustGet(eventKey).(*models.Event)
}

func scannerMeta(c *gin.Context, device string) checkin.ScannerMeta {
	return checkin.ScannerMeta{Device: strings.TrimSpace(device), Origin: c.ClientIP()}
}

// RateLimit allows each client IP r events per second with the given burst.
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	l := &ipLimiter{limit: r, burst: burst, clients: make(map[string]*client)}
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP(), time.Now()) {
			c.Header("Retry-After", "60")
			respondError(c, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, try again later")
			return
		}
		c.Next()
	}
}

const limiterIdle = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*client
	lastSweep time.Time
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > limiterIdle {
		for k, cl := range l.clients {
			if now.Sub(cl.lastSeen) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[ip]
	if !ok {
		cl = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}
