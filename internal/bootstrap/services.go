package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/target/ldap-user-collection/config"
	redisadapter "github.com/target/ldap-user-collection/internal/adapters/redis"
	"github.com/target/ldap-user-collection/internal/data"
	domainauth "github.com/target/ldap-user-collection/internal/domain/auth"
	"github.com/target/ldap-user-collection/internal/observability/metrics"
	"github.com/target/ldap-user-collection/internal/observability/statsd"
	"github.com/target/ldap-user-collection/internal/ports"
	"github.com/target/ldap-user-collection/internal/service"
)

// ServiceDeps groups the infrastructure services are built from.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Directory verifies credentials; required.
	Directory ports.Directory
	// Registerer receives Prometheus collectors; nil uses the default registry.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

// ServiceContainer holds the application services.
type ServiceContainer struct {
	Users    *service.UserCollection
	Sessions *service.SessionService
	Metrics  *metrics.AuthRecorder
	Statsd   *statsd.Client
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	return c.Statsd.Close()
}

// NewServices wires the user collection onto Postgres, the Redis session store, and the directory.
// A nil Redis client yields a collection without sessions, which is how the admin CLI runs.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	sink := buildStatsd(cfg.Observability.Metrics, logger)
	recorder, err := metrics.NewAuthRecorder(metrics.AuthRecorderOptions{
		Registerer: deps.Registerer,
		Sink:       sinkOrNil(sink),
	})
	if err != nil {
		closeErr := sink.Close()
		return ServiceContainer{}, errors.Join(fmt.Errorf("register metrics: %w", err), closeErr)
	}

	directory := deps.Directory
	if directory == nil {
		directory = rejectAll{}
	}

	container := ServiceContainer{
		Users: service.NewUserCollection(service.UserCollectionOptions{
			Store:     data.NewUserRepo(deps.DB),
			Directory: directory,
			Config: service.UserCollectionConfig{
				Path:         cfg.Auth.ResourcePath,
				LocalHashing: cfg.Auth.LocalHashing,
			},
			Metrics: recorder,
			Logger:  logger,
		}),
		Metrics: recorder,
		Statsd:  sink,
	}

	if deps.RedisClient != nil {
		container.Sessions = service.NewSessionService(service.SessionServiceOptions{
			Store:  redisadapter.NewSessionStoreWithPrefix(deps.RedisClient, cfg.Redis.SessionPrefix),
			TTL:    cfg.Auth.SessionTTL,
			Logger: logger,
		})
	}
	return container, nil
}

// buildStatsd returns nil when StatsD is disabled or unreachable; the Prometheus endpoint stays available.
func buildStatsd(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Address: cfg.StatsdAddress,
		Prefix:  cfg.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// sinkOrNil avoids wrapping a nil *statsd.Client in a non-nil interface.
func sinkOrNil(c *statsd.Client) statsd.Sink {
	if c == nil {
		return nil
	}
	return c
}

// rejectAll is the directory used when none is configured, e.g. by the admin CLI.
type rejectAll struct{}

func (rejectAll) Authenticate(context.Context, string, string) domainauth.DirectoryResult {
	return domainauth.DirectoryRejected
}
