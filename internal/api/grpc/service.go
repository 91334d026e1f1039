// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package grpc 提供 gRPC 健康检查服务，按已注册的 ModelKey 报告网关可用性。
package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"clawlink/internal/model/llm"
)

// ServiceGateway 网关整体的健康检查服务名；单个模型为 ServiceGateway + "/" + ModelKey
const ServiceGateway = "clawlink.Gateway"

// ModelRegistry 已注册模型的只读视图
type ModelRegistry interface {
	Keys() []llm.ModelKey
}

// Server gRPC 健康检查服务端
type Server struct {
	health *health.Server
	models ModelRegistry
}

// NewServer 创建健康检查服务并按当前注册表刷新状态
func NewServer(models ModelRegistry) *Server {
	s := &Server{health: health.NewServer(), models: models}
	s.Refresh()
	return s
}

// Register 注册 Health 服务到 grpc.Server
func (s *Server) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// Refresh 重新计算各服务状态；没有任何 Adapter 时网关为 NOT_SERVING
func (s *Server) Refresh() {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var keys []llm.ModelKey
	if s.models != nil {
		keys = s.models.Keys()
	}
	gatewayStatus := healthpb.HealthCheckResponse_NOT_SERVING
	if len(keys) > 0 {
		gatewayStatus = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceGateway, gatewayStatus)

	registered := make(map[llm.ModelKey]bool, len(keys))
	for _, k := range keys {
		registered[k] = true
	}
	for _, k := range llm.KnownModelKeys() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if registered[k] {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ModelService(k), st)
	}
}

// Shutdown 将所有服务置为 NOT_SERVING，用于优雅关闭前通知负载均衡
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// ModelService 单个模型的健康检查服务名
func ModelService(key llm.ModelKey) string {
	return ServiceGateway + "/" + string(key)
}
