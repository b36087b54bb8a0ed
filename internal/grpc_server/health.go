package grpc_server

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// CameraServicePrefix префикс health сервиса камеры: camera/<id>
const CameraServicePrefix = "camera/"

// HealthServer - gRPC сервер со статусами консоли и камер
type HealthServer struct {
	logger *zap.Logger
	health *health.Server
	server *grpc.Server
}

// NewHealthServer создает сервер. Сервис "" сразу SERVING.
func NewHealthServer(logger *zap.Logger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	reflection.Register(server)

	return &HealthServer{
		logger: logger,
		health: hs,
		server: server,
	}
}

// CameraService имя health сервиса камеры
func CameraService(cameraID string) string {
	return CameraServicePrefix + cameraID
}

// SetCameraServing SERVING пока плитка камеры connected
func (s *HealthServer) SetCameraServing(cameraID string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(CameraService(cameraID), status)
}

// Serve обслуживает уже открытый listener
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server listening", zap.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Run слушает адрес и блокируется до остановки
func (s *HealthServer) Run(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Stop переводит все сервисы в NOT_SERVING и останавливает сервер
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.logger.Info("gRPC health server stopped")
}
