package consul

import (
	"fmt"
	"os"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/equipdesk/backend-go/internal/config"
	"github.com/equipdesk/backend-go/internal/logger"
)

// Registry 向Consul注册服务实例
// 未启用时所有方法为空操作
type Registry struct {
	client    *api.Client
	serviceID string
	enabled   bool
}

// NewRegistry 创建并连接Consul客户端
func NewRegistry(cfg config.ConsulConfig) (*Registry, error) {
	if !cfg.Enabled {
		return &Registry{}, nil
	}

	apiConfig := api.DefaultConfig()
	if cfg.Address != "" {
		apiConfig.Address = cfg.Address
	}

	client, err := api.NewClient(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	serviceID := cfg.ServiceID
	if serviceID == "" {
		hostname, _ := os.Hostname()
		serviceID = fmt.Sprintf("%s-%s", cfg.ServiceName, hostname)
	}

	return &Registry{client: client, serviceID: serviceID, enabled: true}, nil
}

// Register 注册服务及HTTP健康检查
func (r *Registry) Register(cfg *config.Config) error {
	if !r.enabled {
		logger.Debug("Consul is not enabled, skipping service registration")
		return nil
	}

	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}
	port := 8002
	if cfg.Server.Port != "" {
		if _, err := fmt.Sscanf(cfg.Server.Port, "%d", &port); err != nil {
			port = 8002
		}
	}

	registration := &api.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    cfg.Consul.ServiceName,
		Tags:    []string{"api", "go", "beego", cfg.Server.Env},
		Address: hostname,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", hostname, port),
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"env": cfg.Server.Env,
		},
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	logger.Info("Service registered with Consul",
		zap.String("service_id", r.serviceID),
		zap.String("service_name", cfg.Consul.ServiceName),
		zap.String("address", hostname),
		zap.Int("port", port))
	return nil
}

// Deregister 注销服务
func (r *Registry) Deregister() error {
	if !r.enabled {
		return nil
	}
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}
	logger.Info("Service deregistered from Consul", zap.String("service_id", r.serviceID))
	return nil
}
