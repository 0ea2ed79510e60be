package registry

import (
	"fmt"
	"sort"
	"strings"

	"zend/internal/domain"
)

type prefixEntry struct {
	prefix  string
	service *domain.ServiceDescriptor
}

// Registry resolves tool names to the service that owns them.
// It is populated by New and read-only afterwards, so lookups take no locks.
type Registry struct {
	services []*domain.ServiceDescriptor
	byID     map[string]*domain.ServiceDescriptor
	exact    map[string]*domain.ServiceDescriptor
	prefixes []prefixEntry
}

// New builds a registry from services in configuration order.
func New(services []domain.ServiceDescriptor) (*Registry, error) {
	r := &Registry{
		byID:  make(map[string]*domain.ServiceDescriptor, len(services)),
		exact: make(map[string]*domain.ServiceDescriptor),
	}
	for _, svc := range services {
		if err := r.register(svc); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) register(svc domain.ServiceDescriptor) error {
	id := strings.TrimSpace(svc.ID)
	if id == "" {
		return fmt.Errorf("register service: id is required")
	}
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("register service %q: duplicate id", id)
	}
	desc := svc
	desc.Tools = append([]string(nil), svc.Tools...)
	desc.Prefixes = append([]string(nil), svc.Prefixes...)
	desc.Routes = append([]domain.Route(nil), svc.Routes...)

	for _, tool := range desc.Tools {
		if owner, exists := r.exact[tool]; exists {
			return fmt.Errorf("register service %q: tool %q already owned by %q", id, tool, owner.ID)
		}
	}
	for _, tool := range desc.Tools {
		r.exact[tool] = &desc
	}
	for _, prefix := range desc.Prefixes {
		if prefix == "" {
			return fmt.Errorf("register service %q: empty prefix", id)
		}
		r.prefixes = append(r.prefixes, prefixEntry{prefix: prefix, service: &desc})
	}
	r.byID[id] = &desc
	r.services = append(r.services, &desc)
	return nil
}

// Resolve returns the owning service. An exact name always wins; otherwise
// the first registered prefix that matches wins, regardless of its length.
func (r *Registry) Resolve(tool string) (domain.ServiceDescriptor, error) {
	if svc, ok := r.exact[tool]; ok {
		return *svc, nil
	}
	for _, entry := range r.prefixes {
		if strings.HasPrefix(tool, entry.prefix) {
			return *entry.service, nil
		}
	}
	return domain.ServiceDescriptor{}, domain.E(domain.KindUnknownTool, "resolve", fmt.Sprintf("tool %q is not registered", tool), domain.ErrUnknownTool)
}

// Service returns a service by id.
func (r *Registry) Service(id string) (domain.ServiceDescriptor, bool) {
	svc, ok := r.byID[id]
	if !ok {
		return domain.ServiceDescriptor{}, false
	}
	return *svc, true
}

// Services lists services in registration order.
func (r *Registry) Services() []domain.ServiceDescriptor {
	out := make([]domain.ServiceDescriptor, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	return out
}

// Tools lists every resolvable name: exact tools sorted by name, followed by
// prefix patterns rendered as "prefix*" in registration order.
func (r *Registry) Tools() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(r.exact)+len(r.prefixes))
	for name, svc := range r.exact {
		out = append(out, domain.ToolDescriptor{Name: name, ServiceID: svc.ID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	for _, entry := range r.prefixes {
		out = append(out, domain.ToolDescriptor{Name: entry.prefix + "*", ServiceID: entry.service.ID})
	}
	return out
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.services)
}
