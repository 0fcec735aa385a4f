package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/taskboard/config"
	"github.com/example/taskboard/database"
	"github.com/example/taskboard/modules/api"
	"github.com/example/taskboard/modules/auth"
	"github.com/example/taskboard/modules/cache"
	"github.com/example/taskboard/modules/media"
	"github.com/example/taskboard/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "taskboard",
		Short: "Taskboard - task and subtask tracking API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func runMigrate(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	log.Printf("Schema is up to date (%s)", cfg.DBDriver)
	return database.Close(db)
}

func runServe(configPath string) error {
	log.Println("=== Taskboard ===")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	policy, err := task.PolicyByName(cfg.TaskAccessPolicy)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	started := false
	defer func() {
		if !started {
			_ = database.Close(db)
		}
	}()

	logLevel := mono.WithLogLevel(mono.LogLevelInfo)
	if cfg.LogLevel == "error" {
		logLevel = mono.WithLogLevel(mono.LogLevelError)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		logLevel,
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.MediaStorageDir),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if cfg.MediaBackend == config.MediaJetStream {
		storagePlugin, err := fsjetstream.New(fsjetstream.Config{
			Buckets: []fsjetstream.BucketConfig{
				{
					Name:        media.BucketName,
					Description: "Task image storage",
					MaxBytes:    1024 * 1024 * 1024,
					Storage:     fsjetstream.FileStorage,
					Compression: true,
				},
			},
		})
		if err != nil {
			return fmt.Errorf("failed to create storage plugin: %w", err)
		}
		if err := app.RegisterPlugin(storagePlugin, "storage"); err != nil {
			return fmt.Errorf("failed to register storage plugin: %w", err)
		}
	}

	if cfg.RedisAddr != "" {
		if err := app.RegisterPlugin(cache.NewPluginModule(cfg.RedisAddr, cfg.CacheTTL), "cache"); err != nil {
			return fmt.Errorf("failed to register cache plugin: %w", err)
		}
	}

	mediaModule := media.NewModule(media.Config{
		Backend:             cfg.MediaBackend,
		Folder:              cfg.MediaFolder,
		PublicBaseURL:       cfg.PublicBaseURL,
		CloudinaryCloudName: cfg.CloudinaryCloudName,
		CloudinaryAPIKey:    cfg.CloudinaryAPIKey,
		CloudinaryAPISecret: cfg.CloudinaryAPISecret,
	})
	taskModule := task.NewModule(db, policy, task.Options{
		StrictEnums: cfg.TaskStrictEnums,
		MaxImages:   cfg.MaxImagesPerRequest,
	})
	authModule := auth.NewModule(db, auth.JWTConfig{
		SecretKey:     cfg.JWTSecretKey,
		TokenDuration: cfg.JWTTokenTTL,
		Issuer:        cfg.JWTIssuer,
	})
	apiModule := api.NewModule(api.Config{
		Port:          cfg.HTTPPort,
		BodyLimit:     int(cfg.MaxUploadSize),
		AuthRateLimit: cfg.AuthRateLimit,
		MaxImages:     cfg.MaxImagesPerRequest,
	})

	taskModule.SetMediaModule(mediaModule)
	apiModule.SetTaskModule(taskModule)
	apiModule.SetMediaModule(mediaModule)

	// Modules start in registration order: media before task before api.
	for _, module := range []mono.Module{mediaModule, taskModule, authModule, apiModule} {
		if err := app.Register(module); err != nil {
			return fmt.Errorf("failed to register %s module: %w", module.Name(), err)
		}
	}

	if err := app.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	started = true

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := app.Stop(ctx); err != nil {
					return err
				}
				return database.Close(db)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
	return nil
}

func printStartupInfo(cfg *config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Printf("  Database:      %s", cfg.DBDriver)
	log.Printf("  Media backend: %s", cfg.MediaBackend)
	log.Printf("  Access policy: %s", cfg.TaskAccessPolicy)
	if cfg.RedisAddr != "" {
		log.Printf("  Cache:         redis at %s (ttl %s)", cfg.RedisAddr, cfg.CacheTTL)
	}
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%d):", cfg.HTTPPort)
	log.Println("")
	log.Println("  Public Endpoints:")
	log.Println("  POST   /api/users/register              - Register and get a token")
	log.Println("  POST   /api/users/login                 - Login and get a token")
	log.Println("  GET    /health                          - Health check")
	if cfg.MediaBackend == config.MediaJetStream {
		log.Println("  GET    /media/*                         - Stored task images")
	}
	log.Println("")
	log.Println("  Protected Endpoints (require Bearer token):")
	log.Println("  GET    /api/users/me                    - Current user")
	log.Println("  POST   /api/tasks                       - Create a task (multipart)")
	log.Println("  GET    /api/tasks                       - List your tasks")
	log.Println("  GET    /api/tasks/:id                   - Get a task")
	log.Println("  PUT    /api/tasks/:id                   - Update a task (multipart)")
	log.Println("  DELETE /api/tasks/:id                   - Delete a task")
	log.Println("  DELETE /api/tasks/bulk                  - Delete several tasks")
	log.Println("  PUT    /api/tasks/status/:id            - Change status")
	log.Println("  PUT    /api/tasks/priority/:id          - Change priority")
	log.Println("  POST   /api/tasks/:taskId/subtasks      - Add a subtask")
	log.Println("  GET    /api/tasks/:taskId/subtasks      - List subtasks")
	log.Println("  PUT    /api/tasks/subtasks/:id          - Rename a subtask")
	log.Println("  PATCH  /api/tasks/subtasks/:id/status   - Set isDone")
	log.Println("  DELETE /api/tasks/subtasks/:id          - Delete a subtask")
	log.Println("  PUT    /api/tasks/subtasks/bulk-status  - Set isDone on several")
	log.Println("  DELETE /api/tasks/subtasks/bulk         - Delete several subtasks")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
