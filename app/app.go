// Package app provides the main application context for Rudder, managing the
// database and services.
package app

import (
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/rudder-cd/rudder/backup"
	"github.com/rudder-cd/rudder/config"
	"github.com/rudder-cd/rudder/db"
	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/events"
	"github.com/rudder-cd/rudder/exec"
	"github.com/rudder-cd/rudder/metrics"
	"github.com/rudder-cd/rudder/orchestrator"
	"github.com/rudder-cd/rudder/protection"
	"github.com/rudder-cd/rudder/proxy"
	"github.com/rudder-cd/rudder/registry"
	"github.com/rudder-cd/rudder/repository"
	"github.com/rudder-cd/rudder/slot"
	"github.com/rudder-cd/rudder/token"
)

var (
	// Version is set at build time via -ldflags
	Version = "dev"

	database          *gorm.DB
	appConfig         *config.Config
	store             *repository.Store
	bus               *events.Bus
	runtime           *docker.Runtime
	router            proxy.Router
	tokenService      *token.Service
	registryService   *registry.Service
	protectionService *protection.Service
	slotManager       *slot.Manager
	deployService     *orchestrator.Orchestrator
	syncService       *registry.Syncer
	backupRecorder    *backup.Recorder
	metricsCollector  *metrics.Collector
)

// InitializeWithConfig initializes the app with a pre-configured Config
func InitializeWithConfig(cfg *config.Config) error {
	var err error

	appConfig = cfg

	// Ensure required directories exist
	if err := os.MkdirAll(appConfig.DataDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(appConfig.TmpDir, 0o755); err != nil {
		return err
	}
	if err := os.MkdirAll(appConfig.ProxyRoutesDir, 0o755); err != nil {
		return err
	}

	// Initialize database using config
	database, err = db.InitDB(appConfig.DatabasePath)
	if err != nil {
		return err
	}

	// Run database migrations
	if err := db.AutoMigrateAll(database); err != nil {
		return err
	}

	store = repository.NewStore(database)
	bus = events.NewBus()

	// The executor and runtime reach remote hosts through the configured
	// host map; the empty host is the local engine
	executor := exec.NewSSHExecutor(appConfig.SSHCommand, appConfig.Hosts, appConfig.CommandTimeout)
	runtime = docker.NewRuntime(executor, appConfig.DockerCommand)

	router, err = buildRouter(appConfig)
	if err != nil {
		return err
	}

	tokenService, err = token.NewService(appConfig.UserTokenKey, appConfig.AdminTokenKey, appConfig.TicketTTL)
	if err != nil {
		return err
	}

	// Initialize services with dependency injection
	registryService = registry.NewService(store)
	verifier := backup.NewVerifier(store, appConfig.BackupMaxAge)
	protectionService = protection.NewService(store, tokenService, verifier, bus, protection.Config{
		TicketTTL:        appConfig.TicketTTL,
		CooldownHigh:     appConfig.CooldownHigh,
		CooldownCritical: appConfig.CooldownCritical,
		MaxEmergency:     appConfig.EmergencyMaxDuration,
	})
	slotManager = slot.NewManager(store, registryService, protectionService, router, runtime, bus, "")
	deployService = orchestrator.New(registryService, protectionService, slotManager, runtime, bus, appConfig)
	syncService = registry.NewSyncer(registryService, runtime, router, bus, "")
	backupRecorder = backup.NewRecorder(store)
	metricsCollector = metrics.NewCollector()
	return nil
}

// buildRouter wires the file-backed routing table to the proxy container.
// Without a configured proxy container, route changes are recorded but
// nothing is signalled.
func buildRouter(cfg *config.Config) (proxy.Router, error) {
	routesPath := filepath.Join(cfg.ProxyRoutesDir, "routes.json")
	if cfg.ProxyContainer == "" {
		return proxy.NewFileRouter(routesPath, proxy.NopReloader{}), nil
	}
	reloader, err := proxy.NewDockerReloader(cfg.ProxyContainer)
	if err != nil {
		return nil, err
	}
	return proxy.NewFileRouter(routesPath, reloader), nil
}

func GetConfig() *config.Config {
	return appConfig
}

func GetStore() *repository.Store {
	return store
}

func GetBus() *events.Bus {
	return bus
}

func GetRuntime() *docker.Runtime {
	return runtime
}

func GetRouter() proxy.Router {
	return router
}

func GetTokenService() *token.Service {
	return tokenService
}

func GetRegistryService() *registry.Service {
	return registryService
}

func GetProtectionService() *protection.Service {
	return protectionService
}

func GetSlotManager() *slot.Manager {
	return slotManager
}

func GetOrchestrator() *orchestrator.Orchestrator {
	return deployService
}

func GetSyncer() *registry.Syncer {
	return syncService
}

func GetBackupRecorder() *backup.Recorder {
	return backupRecorder
}

func GetMetricsCollector() *metrics.Collector {
	return metricsCollector
}
