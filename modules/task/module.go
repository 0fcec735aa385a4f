package task

import (
	"context"
	"fmt"
	"log"

	"github.com/example/taskboard/database"
	"github.com/example/taskboard/modules/cache"
	"github.com/example/taskboard/modules/media"
	"github.com/go-monolith/mono"
	"gorm.io/gorm"
)

// Module owns the task lifecycle service.
type Module struct {
	db          *gorm.DB
	policy      AccessPolicy
	opts        Options
	mediaModule *media.Module
	cachePlugin *cache.PluginModule
	service     *Service
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new task module over an already migrated database.
func NewModule(db *gorm.DB, policy AccessPolicy, opts Options) *Module {
	return &Module{
		db:     db,
		policy: policy,
		opts:   opts,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "task"
}

// SetMediaModule wires the media module. It must be registered before this module.
func (m *Module) SetMediaModule(mediaModule *media.Module) {
	m.mediaModule = mediaModule
}

// SetPlugin receives the optional cache plugin.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	if cachePlugin, ok := plugin.(*cache.PluginModule); ok {
		m.cachePlugin = cachePlugin
	} else {
		log.Printf("[task] Plugin %q is not a cache plugin", alias)
	}
}

// Start builds the service.
func (m *Module) Start(_ context.Context) error {
	if m.db == nil {
		return fmt.Errorf("task: database not set")
	}
	if m.mediaModule == nil || m.mediaModule.Store() == nil {
		return fmt.Errorf("task: media store not available, register the media module first")
	}

	var listCache cache.TaskListCache = cache.NoopTaskListCache{}
	cached := false
	if m.cachePlugin != nil && m.cachePlugin.Tasks() != nil {
		listCache = m.cachePlugin.Tasks()
		cached = true
	}

	m.service = NewService(NewRepository(m.db), m.mediaModule.Store(), listCache, m.policy, m.opts)

	log.Printf("[task] Module started (policy: %T, strict enums: %v, cache: %v)", m.service.policy, m.opts.StrictEnums, cached)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[task] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "service not initialized",
		}
	}
	if err := database.Ping(m.db); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("database ping failed: %v", err),
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"strict_enums": m.opts.StrictEnums,
			"max_images":   m.service.opts.MaxImages,
		},
	}
}

// Service returns the lifecycle service. It is nil until Start succeeds.
func (m *Module) Service() *Service {
	return m.service
}
