// Package fault injects failures into fake adapters at named points.
package fault

import (
	"fmt"
	"sync"

	"swarmorch/internal/check"
)

// Hook inspects the arguments of a call and may fail it.
type Hook func(args ...any) error

type point struct {
	queued []error
	sticky error
	hook   Hook
}

// Injector holds per-point faults. The zero value is not usable; call
// NewInjector. A nil *Injector never fails anything.
type Injector struct {
	mu     sync.Mutex
	points map[string]*point
}

func NewInjector() *Injector {
	return &Injector{points: make(map[string]*point)}
}

// FailOnce queues err for the next evaluation of name. Queued errors are
// consumed in order.
func (i *Injector) FailOnce(name string, err error) {
	check.Assert(err != nil, "fault.Injector.FailOnce: err must not be nil")
	i.update(name, func(p *point) { p.queued = append(p.queued, err) })
}

// FailAlways fails every evaluation of name with err until cleared.
func (i *Injector) FailAlways(name string, err error) {
	check.Assert(err != nil, "fault.Injector.FailAlways: err must not be nil")
	i.update(name, func(p *point) { p.sticky = err })
}

// SetHook installs an argument-aware hook for name.
func (i *Injector) SetHook(name string, hook Hook) {
	check.Assert(hook != nil, "fault.Injector.SetHook: hook must not be nil")
	i.update(name, func(p *point) { p.hook = hook })
}

// Clear removes every fault configured for name.
func (i *Injector) Clear(name string) {
	if i == nil {
		return
	}
	i.mu.Lock()
	delete(i.points, name)
	i.mu.Unlock()
}

// Eval reports the fault for this call of name, if any.
// Precedence: hook, then queued, then sticky.
func (i *Injector) Eval(name string, args ...any) error {
	if i == nil {
		return nil
	}

	i.mu.Lock()
	p := i.points[name]
	if p == nil {
		i.mu.Unlock()
		return nil
	}
	hook, sticky := p.hook, p.sticky
	var queued error
	if len(p.queued) > 0 {
		queued, p.queued = p.queued[0], p.queued[1:]
	}
	i.mu.Unlock()

	if hook != nil {
		if err := hook(args...); err != nil {
			return fmt.Errorf("fault %s (hook): %w", name, err)
		}
	}
	if queued != nil {
		return fmt.Errorf("fault %s (once): %w", name, queued)
	}
	if sticky != nil {
		return fmt.Errorf("fault %s (always): %w", name, sticky)
	}
	return nil
}

func (i *Injector) update(name string, fn func(*point)) {
	check.Assert(i != nil, "fault.Injector: receiver must not be nil")
	check.Assert(name != "", "fault.Injector: point name must not be empty")
	if i == nil || name == "" {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	p, ok := i.points[name]
	if !ok {
		p = &point{}
		i.points[name] = p
	}
	fn(p)
}
