package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/taskboard/modules/auth"
	"github.com/example/taskboard/modules/cache"
	"github.com/example/taskboard/modules/media"
	"github.com/example/taskboard/modules/task"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config holds the HTTP server settings.
type Config struct {
	Port      int
	BodyLimit int
	// AuthRateLimit caps register and login requests per client per minute.
	// Zero disables the limiter.
	AuthRateLimit int
	MaxImages     int
}

// APIModule is the HTTP API module.
type APIModule struct {
	config        Config
	app           *fiber.App
	authContainer mono.ServiceContainer
	authAdapter   auth.AuthPort
	taskModule    *task.Module
	mediaModule   *media.Module
	cachePlugin   *cache.PluginModule
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*APIModule)(nil)
	_ mono.DependentModule       = (*APIModule)(nil)
	_ mono.UsePluginModule       = (*APIModule)(nil)
	_ mono.HealthCheckableModule = (*APIModule)(nil)
)

// NewModule creates a new APIModule.
func NewModule(config Config) *APIModule {
	return &APIModule{config: config}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"auth"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authContainer = container
		m.authAdapter = auth.NewAuthAdapter(container)
	}
}

// SetTaskModule wires the task module. It must be registered before this module.
func (m *APIModule) SetTaskModule(taskModule *task.Module) {
	m.taskModule = taskModule
}

// SetMediaModule wires the media module for serving stored images.
func (m *APIModule) SetMediaModule(mediaModule *media.Module) {
	m.mediaModule = mediaModule
}

// SetPlugin receives the optional cache plugin, used as limiter storage.
func (m *APIModule) SetPlugin(alias string, plugin mono.PluginModule) {
	if alias != "cache" {
		return
	}
	if cachePlugin, ok := plugin.(*cache.PluginModule); ok {
		m.cachePlugin = cachePlugin
	}
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.authContainer == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.taskModule == nil || m.taskModule.Service() == nil {
		return fmt.Errorf("task service not available, register the task module first")
	}

	deps := serverDeps{
		auth:  m.authAdapter,
		tasks: m.taskModule.Service(),
		health: func(ctx context.Context) map[string]mono.HealthStatus {
			return map[string]mono.HealthStatus{
				"task":  m.taskModule.Health(ctx),
				"media": m.mediaHealth(ctx),
			}
		},
	}
	if m.mediaModule != nil {
		if fetcher, ok := m.mediaModule.Fetcher(); ok {
			deps.fetcher = fetcher
		}
	}
	if m.cachePlugin != nil {
		deps.limiterStorage = m.cachePlugin.LimiterStorage()
	}

	m.app = newServer(m.config, deps)

	go func() {
		if err := m.app.Listen(fmt.Sprintf(":%d", m.config.Port)); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on :%d", m.config.Port)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.Shutdown()
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port": m.config.Port,
		},
	}
}

func (m *APIModule) mediaHealth(ctx context.Context) mono.HealthStatus {
	if m.mediaModule == nil {
		return mono.HealthStatus{Healthy: false, Message: "media module not set"}
	}
	return m.mediaModule.Health(ctx)
}

// serverDeps are the collaborators the routes call into.
type serverDeps struct {
	auth           auth.AuthPort
	tasks          TaskLifecycle
	fetcher        media.Fetcher
	limiterStorage fiber.Storage
	health         func(ctx context.Context) map[string]mono.HealthStatus
}

// newServer builds the Fiber app with middleware and routes.
func newServer(config Config, deps serverDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		BodyLimit:             config.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New())
	app.Use(helmet.New(helmet.Config{
		// Images under /media are embedded by a frontend on another origin.
		CrossOriginResourcePolicy: "cross-origin",
	}))

	setupRoutes(app, config, deps)
	return app
}

// setupRoutes configures all API routes. Literal segments are registered
// before parameters that would otherwise capture them.
func setupRoutes(app *fiber.App, config Config, deps serverDeps) {
	users := NewHandlers(deps.auth)
	tasks := NewTaskHandlers(deps.tasks, config.MaxImages)

	app.Get("/health", func(c *fiber.Ctx) error {
		if deps.health == nil {
			return c.JSON(fiber.Map{"status": "healthy", "module": "api"})
		}
		modules := deps.health(c.UserContext())
		status, code := "healthy", fiber.StatusOK
		for _, h := range modules {
			if !h.Healthy {
				status, code = "unhealthy", fiber.StatusServiceUnavailable
			}
		}
		return c.Status(code).JSON(fiber.Map{"status": status, "modules": modules})
	})

	if deps.fetcher != nil {
		app.Get("/media/*", NewMediaHandlers(deps.fetcher).Get)
	}

	api := app.Group("/api")

	userRoutes := api.Group("/users")
	if config.AuthRateLimit > 0 {
		limit := authLimiter(config.AuthRateLimit, deps.limiterStorage)
		userRoutes.Post("/register", limit, users.Register)
		userRoutes.Post("/login", limit, users.Login)
	} else {
		userRoutes.Post("/register", users.Register)
		userRoutes.Post("/login", users.Login)
	}
	userRoutes.Get("/me", AuthMiddleware(deps.auth), users.Me)

	taskRoutes := api.Group("/tasks", AuthMiddleware(deps.auth))

	taskRoutes.Post("/", tasks.CreateTask)
	taskRoutes.Get("/", tasks.ListTasks)
	taskRoutes.Delete("/bulk", tasks.BulkDeleteTasks)
	taskRoutes.Put("/status/:id", tasks.ChangeTaskStatus)
	taskRoutes.Put("/priority/:id", tasks.ChangeTaskPriority)

	taskRoutes.Put("/subtasks/bulk-status", tasks.BulkUpdateSubtasksStatus)
	taskRoutes.Delete("/subtasks/bulk", tasks.BulkDeleteSubtasks)
	taskRoutes.Put("/subtasks/:id", tasks.UpdateSubtask)
	taskRoutes.Patch("/subtasks/:id/status", tasks.UpdateSubtaskStatus)
	taskRoutes.Delete("/subtasks/:id", tasks.DeleteSubtask)

	taskRoutes.Post("/:taskId/subtasks", tasks.CreateSubtask)
	taskRoutes.Get("/:taskId/subtasks", tasks.ListSubtasks)

	taskRoutes.Get("/:id", tasks.GetTask)
	taskRoutes.Put("/:id", tasks.UpdateTask)
	taskRoutes.Delete("/:id", tasks.DeleteTask)
}

// authLimiter throttles credential endpoints per client IP. A nil storage
// keeps counters in memory.
func authLimiter(maxRequests int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: time.Minute,
		Storage:    storage,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "too_many_requests",
				Message: "Too many attempts, try again later",
			})
		},
	})
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	} else {
		log.Printf("[api] Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}
