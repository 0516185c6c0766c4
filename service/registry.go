package service

import "fmt"

// Registry holds Descriptors by service name, so a process can expose
// more than one service over the same channel manager.
type Registry struct {
	services map[string]*Descriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]*Descriptor)}
}

// Register adds rcvr's Descriptor under its struct name. It returns an
// error if rcvr exposes no RPC-compatible methods or the name collides
// with an already-registered service.
func (r *Registry) Register(rcvr any) error {
	d, err := New(rcvr)
	if err != nil {
		return err
	}
	if _, exists := r.services[d.Name()]; exists {
		return fmt.Errorf("service: %s already registered", d.Name())
	}
	r.services[d.Name()] = d
	return nil
}

// Unregister removes a service by name.
func (r *Registry) Unregister(name string) {
	delete(r.services, name)
}

// Lookup returns the Descriptor for a service name, if registered.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.services[name]
	return d, ok
}
