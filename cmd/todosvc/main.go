package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkrupp/taskcase-michael/internal/infra/config"
	"github.com/mkrupp/taskcase-michael/internal/infra/logging"
	"github.com/mkrupp/taskcase-michael/internal/infra/transport/http"
	"github.com/mkrupp/taskcase-michael/internal/repo/task"
	"github.com/mkrupp/taskcase-michael/internal/repo/user"
	"github.com/mkrupp/taskcase-michael/internal/svc/authsvc"
	"github.com/mkrupp/taskcase-michael/internal/svc/todosvc"
)

const (
	appName = "demo"
	svcName = "todosvc"
)

type Config struct {
	config.EnvConfig

	Log  logging.LoggerConfig            `envPrefix:"LOG_"`
	Auth authsvc.AuthConfig              `envPrefix:"AUTH_"`
	HTTP todosvc.HTTPTransportConfig     `envPrefix:"HTTP_"`
	User user.SQLiteUserRepositoryConfig `envPrefix:"USER_"`
	Task task.SQLiteTaskRepositoryConfig `envPrefix:"TASK_"`
}

func main() {
	var (
		cfg Config
		ctx = context.Background()

		configPrefix = strings.ToUpper(strings.Join([]string{appName, svcName}, "_"))
		loggerName   = strings.ToLower(strings.Join([]string{appName, svcName}, "."))
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		panic(err)
	}

	logging.Configure(ctx, cfg.Log, loggerName)

	if err := run(ctx, cfg); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, cfg Config) (err error) {
	defer func() {
		log := logging.GetLogger("cmd.todosvc")

		if err != nil {
			log.ErrorContext(ctx, "error", "err", err)
			panic(err)
		}

		log.InfoContext(ctx, "shutdown")
	}()

	authSvc, err := authsvc.NewAuthService(
		user.SQLiteUserRepositoryFactory(cfg.User),
		cfg.Auth,
	)
	if err != nil {
		return fmt.Errorf("new auth service: %w", err)
	}
	defer authSvc.Close()

	todoSvc, err := todosvc.NewTodoService(
		task.SQLiteTaskRepositoryFactory(cfg.Task),
	)
	if err != nil {
		return fmt.Errorf("new todo service: %w", err)
	}
	defer todoSvc.Close()

	httpTransport := todosvc.NewHTTPTransport(authSvc, todoSvc, cfg.HTTP)

	if err := http.ListenAndServe(ctx, httpTransport, cfg.HTTP.HTTPTransportConfig); err != nil {
		return fmt.Errorf("listen and serve: %w", err)
	}

	return nil
}
