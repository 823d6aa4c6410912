package storage

import (
	"fmt"

	"github.com/semmidev/cloudvault/internal/domain"
)

const (
	ServiceAWS   = "aws"
	ServiceGCP   = "gcp"
	ServiceAzure = "azure"
	ServiceLocal = "local"
)

// Registry maps cloud service names to configured backends.
type Registry struct {
	backends map[string]domain.ObjectStore
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]domain.ObjectStore)}
}

func (r *Registry) Register(service string, store domain.ObjectStore) {
	r.backends[service] = store
}

func (r *Registry) Resolve(service string) (domain.ObjectStore, error) {
	store, ok := r.backends[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedBackend, service)
	}
	return store, nil
}

func (r *Registry) Services() []string {
	services := make([]string, 0, len(r.backends))
	for name := range r.backends {
		services = append(services, name)
	}
	return services
}
