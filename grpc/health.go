package grpc

import (
	"fmt"
	"log"
	"net"

	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName 是本机器人对外报告健康状态的服务名
const ServiceName = "promotion.Moderator"

// HealthServer 封装 gRPC 健康检查服务
type HealthServer struct {
	srv    *grpc.Server
	health *health.Server
	lis    net.Listener
}

// StartHealthServer 在 addr 上启动健康检查服务，初始状态为 NOT_SERVING
func StartHealthServer(addr string) (*HealthServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	go func() {
		if err := srv.Serve(lis); err != nil {
			log.Printf("[gRPC] 健康检查服务已停止: %v", err)
		}
	}()
	log.Printf("[gRPC] 健康检查服务监听于 %s", lis.Addr())

	return &HealthServer{srv: srv, health: hs, lis: lis}, nil
}

// Addr 返回实际监听地址
func (h *HealthServer) Addr() string {
	return h.lis.Addr().String()
}

// SetServing 更新服务状态
func (h *HealthServer) SetServing(serving bool) {
	if h == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}

// Stop 关闭健康检查服务
func (h *HealthServer) Stop() {
	if h == nil {
		return
	}
	h.health.Shutdown()
	h.srv.GracefulStop()
}
