package service

import (
	"context"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// HTTP operations, used for middleware selection and request logs.
const (
	OperationAIServiceGenerate = "/aiguard.v1.AIService/Generate"
	OperationAIServiceHealth   = "/aiguard.v1.AIService/Health"
	OperationAIServiceUsage    = "/aiguard.v1.AIService/Usage"
	OperationAIServiceRoute    = "/aiguard.v1.AIService/Route"
)

// RegisterAIServiceHTTPServer registers the AIService routes on s.
func RegisterAIServiceHTTPServer(s *http.Server, srv *AIService) {
	r := s.Route("/")
	r.POST("/v1/generate", _AIService_Generate_HTTP_Handler(srv))
	r.GET("/v1/health", _AIService_Health_HTTP_Handler(srv))
	r.GET("/v1/usage/{scope}/{id}", _AIService_Usage_HTTP_Handler(srv))
	r.POST("/v1/route", _AIService_Route_HTTP_Handler(srv))
}

func _AIService_Generate_HTTP_Handler(srv *AIService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in GenerateRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationAIServiceGenerate)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Generate(ctx, req.(*GenerateRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _AIService_Health_HTTP_Handler(srv *AIService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		http.SetOperation(ctx, OperationAIServiceHealth)
		h := ctx.Middleware(func(ctx context.Context, _ interface{}) (interface{}, error) {
			return srv.Health(ctx)
		})
		out, err := h(ctx, nil)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _AIService_Usage_HTTP_Handler(srv *AIService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		vars := ctx.Vars()
		in := UsageRequest{Scope: vars.Get("scope"), ID: vars.Get("id")}
		http.SetOperation(ctx, OperationAIServiceUsage)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Usage(ctx, req.(*UsageRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

func _AIService_Route_HTTP_Handler(srv *AIService) func(ctx http.Context) error {
	return func(ctx http.Context) error {
		var in RouteRequest
		if err := ctx.Bind(&in); err != nil {
			return err
		}
		http.SetOperation(ctx, OperationAIServiceRoute)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.Route(ctx, req.(*RouteRequest))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}
