//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
	"github.com/adityat54544/AI-SAAS-1/internal/data"
	"github.com/adityat54544/AI-SAAS-1/internal/server"
	"github.com/adityat54544/AI-SAAS-1/internal/service"
)

// wireApp init kratos application.
func wireApp(*conf.Server, *conf.Data, *conf.AI, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		newReportScheduler,
		newApp,
	))
}
