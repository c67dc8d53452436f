package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/librepage/librepage-back/internal/analytics"
	"github.com/librepage/librepage-back/internal/auth"
	"github.com/librepage/librepage-back/internal/config"
	"github.com/librepage/librepage-back/internal/db"
	"github.com/librepage/librepage-back/internal/notify"
	"github.com/librepage/librepage-back/internal/service"
	"github.com/librepage/librepage-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			func() (*zap.SugaredLogger, error) {
				l, err := zap.NewProduction()
				if err != nil {
					return nil, err
				}
				return l.Sugar(), nil
			},
			db.NewGormClient,
			func(cfg *config.Config) *auth.Issuer {
				return auth.NewIssuer(cfg.JWTSecret, cfg.JWTTokenTTL)
			},
			func(cfg *config.Config) *analytics.ResponseCache {
				return analytics.NewResponseCache(cfg.AnalyticsCacheTTL)
			},
			analytics.NewClient,
			notify.NewHub,
			service.NewUsers,
			service.NewLinks,
			service.NewGroups,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(server *transport.HTTPServer) {}),
	)

	app.Run()
}
