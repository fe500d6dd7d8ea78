package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hivemind-app/hivemind-back/internal/auth"
	"github.com/hivemind-app/hivemind-back/internal/config"
	"github.com/hivemind-app/hivemind-back/internal/db"
	"github.com/hivemind-app/hivemind-back/internal/service"
	"github.com/hivemind-app/hivemind-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(newLogger),
		config.Module,
		db.Module,
		auth.Module,
		service.Module,
		transport.Module,
		fx.Invoke(func(*transport.HTTPServer) {}),
	)

	app.Run()
}

func newLogger() (*zap.SugaredLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return l.Sugar(), nil
}
