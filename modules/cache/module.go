package cache

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/redis/v3"
)

// PluginModule connects to Redis and exposes the task list cache and the
// raw storage used by the HTTP rate limiter. Plugins start before modules.
type PluginModule struct {
	container types.ServiceContainer
	storage   *redis.Storage
	service   CacheService
	tasks     TaskListCache
	redisAddr string
	prefix    string
	ttl       time.Duration
}

// Compile-time interface checks.
var (
	_ mono.PluginModule          = (*PluginModule)(nil)
	_ mono.HealthCheckableModule = (*PluginModule)(nil)
)

// NewPluginModule creates a cache plugin for the Redis server at redisAddr.
func NewPluginModule(redisAddr string, ttl time.Duration) *PluginModule {
	return &PluginModule{
		redisAddr: redisAddr,
		prefix:    "taskboard:",
		ttl:       ttl,
	}
}

// Name returns the module name.
func (m *PluginModule) Name() string {
	return "cache"
}

// Start connects to Redis. gofiber/storage/redis panics when the server is
// unreachable, so main only registers this plugin when REDIS_ADDR is set.
func (m *PluginModule) Start(_ context.Context) error {
	host, port := parseRedisAddr(m.redisAddr)
	m.storage = redis.New(redis.Config{
		Host:     host,
		Port:     port,
		PoolSize: 50,
	})
	m.service = NewCacheService(m.storage, m.prefix, m.ttl)
	m.tasks = NewTaskListCache(m.service)

	log.Printf("[cache] Connected to Redis at %s (prefix: %s, TTL: %s)", m.redisAddr, m.prefix, m.ttl)
	return nil
}

// Stop closes the Redis connection.
func (m *PluginModule) Stop(_ context.Context) error {
	if m.service != nil {
		if err := m.service.Close(); err != nil {
			log.Printf("[cache] Error closing connection: %v", err)
			return fmt.Errorf("failed to close connection: %w", err)
		}
	}
	log.Println("[cache] Plugin stopped")
	return nil
}

// SetContainer sets the service container for this plugin.
func (m *PluginModule) SetContainer(container types.ServiceContainer) {
	m.container = container
}

// Container returns the service container for this plugin.
func (m *PluginModule) Container() types.ServiceContainer {
	return m.container
}

// Tasks returns the task list cache. It is nil before Start.
func (m *PluginModule) Tasks() TaskListCache {
	return m.tasks
}

// LimiterStorage returns the Redis storage for fiber's limiter middleware.
func (m *PluginModule) LimiterStorage() fiber.Storage {
	if m.storage == nil {
		return nil
	}
	return m.storage
}

// Health returns the current health status.
func (m *PluginModule) Health(ctx context.Context) mono.HealthStatus {
	if m.storage == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "storage not initialized",
		}
	}

	if _, err := m.storage.GetWithContext(ctx, m.prefix+"__health_check__"); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("health check failed: %v", err),
		}
	}

	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"redis_addr": m.redisAddr,
			"prefix":     m.prefix,
			"ttl":        m.ttl.String(),
		},
	}
}

// parseRedisAddr parses "host:port", falling back to 127.0.0.1:6379.
func parseRedisAddr(addr string) (string, int) {
	const defaultHost = "127.0.0.1"
	const defaultPort = 6379

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return defaultHost, defaultPort
	}
	if host == "" {
		host = defaultHost
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort
	}
	return host, port
}
