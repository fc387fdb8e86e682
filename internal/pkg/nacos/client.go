// internal/pkg/nacos/client.go
package nacos

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/naming_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"

	"loyalty/internal/pkg/logger"
)

// Client 封装了 Nacos 命名客户端。
type Client struct {
	namingClient naming_client.INamingClient
	groupName    string
}

// NewClient 创建并返回一个新的 Nacos 客户端。
// addrs 格式为 "ip1:port1,ip2:port2"。
func NewClient(addrs, namespaceID, groupName string) (*Client, error) {
	ctx := context.Background()
	if groupName == "" {
		groupName = "DEFAULT_GROUP"
	}

	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		host, portStr, ok := strings.Cut(addr, ":")
		if !ok {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(portStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", portStr)
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(host, port))
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(namespaceID),
	)

	namingClient, err := clients.NewNamingClient(
		vo.NacosClientParam{
			ClientConfig:  &clientConfig,
			ServerConfigs: serverConfigs,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create nacos naming client: %w", err)
	}

	logger.Ctx(ctx).Info().Msg("Connected to Nacos.")
	return &Client{namingClient: namingClient, groupName: groupName}, nil
}

// RegisterServiceInstance 注册一个服务实例到 Nacos。
// 注册为临时节点，心跳断开后自动摘除。
func (c *Client) RegisterServiceInstance(serviceName, ip string, port int) error {
	success, err := c.namingClient.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to register service with nacos: %w", err)
	}
	if !success {
		return fmt.Errorf("nacos registration was not successful for service: %s", serviceName)
	}
	logger.Ctx(context.Background()).Info().Msgf("Service '%s' registered to Nacos (%s:%d)", serviceName, ip, port)
	return nil
}

// DeregisterServiceInstance 从 Nacos 注销一个服务实例。
func (c *Client) DeregisterServiceInstance(serviceName, ip string, port int) error {
	_, err := c.namingClient.DeregisterInstance(vo.DeregisterInstanceParam{
		Ip:          ip,
		Port:        uint64(port),
		ServiceName: serviceName,
		Ephemeral:   true,
		GroupName:   c.groupName,
	})
	if err != nil {
		return fmt.Errorf("failed to deregister service with nacos: %w", err)
	}
	return nil
}

// DiscoverServiceInstance 用 Nacos 内置的负载均衡选出一个健康实例。
func (c *Client) DiscoverServiceInstance(serviceName string) (string, int, error) {
	instance, err := c.namingClient.SelectOneHealthyInstance(vo.SelectOneHealthInstanceParam{
		ServiceName: serviceName,
		GroupName:   c.groupName,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to discover healthy instance for service '%s': %w", serviceName, err)
	}
	if instance == nil {
		return "", 0, fmt.Errorf("no healthy instance available for service '%s'", serviceName)
	}
	return instance.Ip, int(instance.Port), nil
}
