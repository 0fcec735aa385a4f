package media

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
)

const (
	BackendJetStream  = "jetstream"
	BackendCloudinary = "cloudinary"
)

// Config selects and configures the media backend.
type Config struct {
	Backend       string
	Folder        string
	PublicBaseURL string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

// Module owns the media store used by the task module.
type Module struct {
	config  Config
	storage *fsjetstream.PluginModule
	store   Store
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.UsePluginModule       = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new media module.
func NewModule(config Config) *Module {
	return &Module{config: config}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "media"
}

// SetPlugin receives the fs-jetstream plugin registered under the "storage" alias.
func (m *Module) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "storage" {
		return
	}
	storage, ok := plugin.(*fsjetstream.PluginModule)
	if !ok {
		log.Printf("[media] Plugin %q is not an fs-jetstream plugin", alias)
		return
	}
	m.storage = storage
}

// Start builds the configured store.
func (m *Module) Start(_ context.Context) error {
	switch m.config.Backend {
	case BackendJetStream:
		if m.storage == nil {
			return fmt.Errorf("required plugin 'storage' not registered")
		}
		bucket := m.storage.Bucket(BucketName)
		if bucket == nil {
			return fmt.Errorf("bucket '%s' not found in storage plugin", BucketName)
		}
		m.store = NewJetStreamStore(bucket, m.config.Folder, m.config.PublicBaseURL)
	case BackendCloudinary:
		store, err := NewCloudinaryStore(
			m.config.CloudinaryCloudName,
			m.config.CloudinaryAPIKey,
			m.config.CloudinaryAPISecret,
			m.config.Folder,
		)
		if err != nil {
			return err
		}
		m.store = store
	default:
		return fmt.Errorf("unsupported media backend: %q", m.config.Backend)
	}

	log.Printf("[media] Module started (backend: %s, folder: %s)", m.config.Backend, m.config.Folder)
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	log.Println("[media] Module stopped")
	return nil
}

// Health returns the health status of the module.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: "media store not initialized",
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"backend": m.config.Backend,
			"folder":  m.config.Folder,
		},
	}
}

// Store returns the media store. It is nil until Start succeeds.
func (m *Module) Store() Store {
	return m.store
}

// Fetcher returns the store as a Fetcher when the backend serves its own objects.
func (m *Module) Fetcher() (Fetcher, bool) {
	f, ok := m.store.(Fetcher)
	return f, ok
}
