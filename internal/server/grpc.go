package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
)

// HealthServiceName is the gRPC health service name that tracks the
// upstream circuit. The empty name reports overall process health.
const HealthServiceName = "aiguard.v1.AIService"

// NewHealthServer creates a gRPC health server whose status follows the
// circuit breaker: NOT_SERVING while the circuit is open, SERVING otherwise.
func NewHealthServer(uc *biz.GatewayUsecase, logger log.Logger) *health.Server {
	helper := log.NewHelper(logger)
	hs := health.NewServer()
	hs.SetServingStatus(HealthServiceName, servingStatus(uc.Invoker().Breaker().State()))

	uc.Invoker().Breaker().OnStateChange(func(_, to biz.CircuitState, _ biz.CircuitSnapshot) {
		status := servingStatus(to)
		hs.SetServingStatus(HealthServiceName, status)
		helper.Infow("msg", "health status updated",
			"service", HealthServiceName,
			"status", status.String())
	})
	return hs
}

func servingStatus(state biz.CircuitState) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if state == biz.CircuitOpen {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_SERVING
}

// NewGRPCServer new a gRPC server exposing the health service.
func NewGRPCServer(c *conf.Server, hs *health.Server, logger log.Logger) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
		grpc.CustomHealth(),
	}
	if c != nil && c.GRPC != nil {
		if c.GRPC.Network != "" {
			opts = append(opts, grpc.Network(c.GRPC.Network))
		}
		if c.GRPC.Addr != "" {
			opts = append(opts, grpc.Address(c.GRPC.Addr))
		}
		if c.GRPC.Timeout != nil {
			opts = append(opts, grpc.Timeout(c.GRPC.Timeout.AsDuration()))
		}
	}
	srv := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(srv, hs)

	log.NewHelper(logger).Debugw("msg", "gRPC health service registered", "service", HealthServiceName)
	return srv
}
