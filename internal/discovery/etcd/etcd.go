package etcd

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// ServiceRegistry registers service instances in etcd so the gateway layer can
// discover them.
type ServiceRegistry struct {
	cli *clientv3.Client
}

// NewServiceRegistry connects to the given etcd endpoints.
func NewServiceRegistry(endpoints []string) (*ServiceRegistry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	return &ServiceRegistry{cli: cli}, nil
}

// Register announces a service instance under /<serviceName>/<addr> with a
// lease of ttl seconds and keeps the lease alive until the returned channel is
// closed.
func (r *ServiceRegistry) Register(ctx context.Context, serviceName, addr string, ttl int64) (chan<- struct{}, error) {
	leaseResp, err := r.cli.Grant(ctx, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to grant etcd lease: %w", err)
	}

	key := "/" + serviceName + "/" + addr
	if _, err = r.cli.Put(ctx, key, addr, clientv3.WithLease(leaseResp.ID)); err != nil {
		return nil, fmt.Errorf("failed to register service in etcd: %w", err)
	}

	keepAliveCh, err := r.cli.KeepAlive(ctx, leaseResp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to keep etcd lease alive: %w", err)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				r.cli.Delete(context.Background(), key)
				return
			case _, ok := <-keepAliveCh:
				if !ok {
					// Lease expired or was revoked; etcd drops the key.
					return
				}
			}
		}
	}()

	return stop, nil
}

// Discover returns the registered addresses of a service.
func (r *ServiceRegistry) Discover(ctx context.Context, serviceName string) ([]string, error) {
	resp, err := r.cli.Get(ctx, "/"+serviceName, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover service '%s': %w", serviceName, err)
	}

	var addrs []string
	for _, kv := range resp.Kvs {
		addrs = append(addrs, string(kv.Value))
	}
	return addrs, nil
}

// Close closes the etcd client.
func (r *ServiceRegistry) Close() error {
	return r.cli.Close()
}
