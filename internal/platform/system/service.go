// Package system provides the lifecycle contract and manager for long-running
// platform components. The manager starts and stops only the services
// registered with it; in this module that is the HTTP boundary.
package system

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Service is a lifecycle-managed component.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Layer describes the architectural slice a service belongs to, used only
// for descriptor ordering/documentation; it does not change runtime behavior.
type Layer string

const (
	LayerIngress Layer = "ingress"
	LayerCore    Layer = "core"
	LayerData    Layer = "data"
)

// Descriptor advertises a service's placement and capabilities.
type Descriptor struct {
	Name         string
	Layer        Layer
	Capabilities []string
}

// DescriptorProvider is implemented by services that want to advertise a Descriptor.
type DescriptorProvider interface {
	Descriptor() Descriptor
}

// CollectDescriptors extracts descriptors from providers, sorted by layer then name.
func CollectDescriptors(providers []DescriptorProvider) []Descriptor {
	var out []Descriptor
	for _, p := range providers {
		if p == nil {
			continue
		}
		out = append(out, p.Descriptor())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Layer == out[j].Layer {
			return out[i].Name < out[j].Name
		}
		return out[i].Layer < out[j].Layer
	})
	return out
}

// Manager starts and stops registered services in registration order, and
// stops them in reverse order. Start failures cause already-started services
// to be stopped before the error is returned.
type Manager struct {
	mu       sync.Mutex
	services []Service
}

// NewManager returns an empty Manager.
func NewManager() *Manager { return &Manager{} }

// Register adds a service to the manager. Safe to call before Start only.
func (m *Manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
}

// Start starts every registered service in registration order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	started := make([]Service, 0, len(services))
	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				_ = started[i].Stop(ctx)
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		started = append(started, svc)
	}
	return nil
}

// Stop stops every registered service in reverse registration order,
// collecting (not short-circuiting on) individual stop errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	var firstErr error
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop %s: %w", services[i].Name(), err)
		}
	}
	return firstErr
}

// Descriptors collects Descriptor values from every registered service that
// implements DescriptorProvider, sorted by layer then name.
func (m *Manager) Descriptors() []Descriptor {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	providers := make([]DescriptorProvider, 0, len(services))
	for _, svc := range services {
		if p, ok := svc.(DescriptorProvider); ok {
			providers = append(providers, p)
		}
	}
	return CollectDescriptors(providers)
}

// Names returns the registered service names in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.services))
	for i, svc := range m.services {
		names[i] = svc.Name()
	}
	return names
}
