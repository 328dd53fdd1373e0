package system

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"norelock.dev/nowplaying/bot/internal/db/redis"
	"norelock.dev/nowplaying/bot/internal/utils"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// StatusUp indicates the component is healthy.
	StatusUp HealthStatus = "up"
	// StatusDown indicates the component is unhealthy.
	StatusDown HealthStatus = "down"
)

const healthCheckTimeout = 3 * time.Second

// ComponentHealth represents the health of a system component.
type ComponentHealth struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Description string       `json:"description,omitempty"`
	Latency     int64        `json:"latency_ms"`
}

// SystemHealth represents the overall health of the bot.
type SystemHealth struct {
	Status     HealthStatus      `json:"status"`
	Components []ComponentHealth `json:"components"`
	Uptime     int64             `json:"uptime_seconds"`
	StartTime  time.Time         `json:"start_time"`
}

// HealthService checks the bot's backing stores on demand.
type HealthService struct {
	mongoClient *mongo.Client
	redisClient *redis.Client
	startTime   time.Time
	logger      *utils.Logger
}

// NewHealthService creates a new health service.
func NewHealthService(mongoClient *mongo.Client, redisClient *redis.Client, logger *utils.Logger) *HealthService {
	return &HealthService{
		mongoClient: mongoClient,
		redisClient: redisClient,
		startTime:   time.Now(),
		logger:      logger.Named("health_service"),
	}
}

// GetHealth checks every component and returns the aggregate health.
func (s *HealthService) GetHealth(ctx context.Context) SystemHealth {
	health := SystemHealth{
		Status:    StatusUp,
		StartTime: s.startTime,
		Uptime:    int64(time.Since(s.startTime).Seconds()),
	}

	health.Components = append(health.Components,
		s.checkMongoDB(ctx),
		s.checkRedis(ctx),
	)

	for _, component := range health.Components {
		if component.Status == StatusDown {
			health.Status = StatusDown
			break
		}
	}

	return health
}

func (s *HealthService) checkMongoDB(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := s.mongoClient.Ping(ctx, nil)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		s.logger.Warn("MongoDB health check failed", "error", err)
		return ComponentHealth{Name: "mongodb", Status: StatusDown, Description: err.Error(), Latency: latency}
	}
	return ComponentHealth{Name: "mongodb", Status: StatusUp, Latency: latency}
}

func (s *HealthService) checkRedis(ctx context.Context) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	start := time.Now()
	err := s.redisClient.Ping(ctx)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		s.logger.Warn("Redis health check failed", "error", err)
		return ComponentHealth{Name: "redis", Status: StatusDown, Description: err.Error(), Latency: latency}
	}
	return ComponentHealth{Name: "redis", Status: StatusUp, Latency: latency}
}
