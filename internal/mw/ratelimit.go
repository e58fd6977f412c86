package mw

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterTTL        = 2 * time.Minute
	limiterGCInterval = 30 * time.Second
)

type clientLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter 按 IP+路径维护一组令牌桶，闲置的桶由后台 GC 回收。
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	stop    chan struct{}
}

func NewLimiter(r rate.Limit, burst int) *Limiter {
	return &Limiter{clients: make(map[string]*clientLimiter), rate: r, burst: burst, stop: make(chan struct{})}
}

func (l *Limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{lim: rate.NewLimiter(l.rate, l.burst)}
		l.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.lim.Allow()
}

func (l *Limiter) gc() {
	ticker := time.NewTicker(limiterGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for k, v := range l.clients {
				if now.Sub(v.lastSeen) > limiterTTL {
					delete(l.clients, k)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop 停止 GC goroutine，用于优雅停服。
func (l *Limiter) Stop() {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
}

// RateLimit 返回限速中间件。心跳和状态轮询共享同一个桶，阈值要留足余量。
func RateLimit(r rate.Limit, burst int) gin.HandlerFunc {
	l := NewLimiter(r, burst)
	go l.gc()
	return func(c *gin.Context) {
		key := clientIP(c.Request.RemoteAddr) + "|" + c.FullPath()
		if !l.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"msg": "Too many requests"})
			return
		}
		c.Next()
	}
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
