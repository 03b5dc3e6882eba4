package app

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/noah-isme/taskmanager/internal/auth"
	"github.com/noah-isme/taskmanager/internal/observability"
	"github.com/noah-isme/taskmanager/internal/tasks"
	taskshttp "github.com/noah-isme/taskmanager/internal/tasks/http"
	"github.com/noah-isme/taskmanager/internal/users"
	usershttp "github.com/noah-isme/taskmanager/internal/users/http"
	"github.com/noah-isme/taskmanager/jobs"
)

// APIParams groups what NewAPI needs to assemble the HTTP surface.
type APIParams struct {
	Logger     *slog.Logger
	Config     *Config
	Stores     *Stores
	Metrics    *observability.Metrics
	Purges     users.PurgeScheduler
	JobHandler *jobs.Handler
	// Clock overrides token time; nil means time.Now.
	Clock func() time.Time
}

// NewAPI wires services, the auth gate and handlers into a router.
func NewAPI(p APIParams) (http.Handler, error) {
	if p.Config == nil || p.Stores == nil {
		return nil, errors.New("app: config and stores are required")
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	taskService := tasks.NewService(p.Stores.Tasks)
	userService := users.NewService(p.Stores.Users, taskService, p.Stores.Tx, users.ServiceConfig{
		BcryptCost: p.Config.BcryptCost,
		Purges:     p.Purges,
		Logger:     logger,
	})

	issuer, err := auth.NewIssuer(p.Stores.Users, auth.IssuerConfig{
		Secret: []byte(p.Config.JWTSecret),
		TTL:    p.Config.TokenTTL,
		Now:    p.Clock,
	})
	if err != nil {
		return nil, err
	}

	var observer auth.FailureObserver
	if p.Metrics != nil {
		observer = p.Metrics
	}
	gate := auth.NewGate(issuer, logger, observer)

	return NewRouter(RouterParams{
		Logger:       logger,
		Config:       p.Config,
		UsersHandler: usershttp.NewHandler(logger, userService, issuer, gate.Middleware, p.Config.LoginRateLimit),
		TasksHandler: taskshttp.NewHandler(logger, taskService, gate.Middleware),
		JobHandler:   p.JobHandler,
		Metrics:      p.Metrics,
	}), nil
}
