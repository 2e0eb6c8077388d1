package clients

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeOrders struct {
	name string
}

func (f *fakeOrders) CreateOrder(context.Context, Order) (string, error) { return f.name, nil }
func (f *fakeOrders) OrderStatus(context.Context, string) (OrderStatus, error) {
	return OrderStatus{Status: f.name}, nil
}
func (f *fakeOrders) Services(context.Context) ([]Service, error) { return nil, nil }

func TestProviderReconfigure(t *testing.T) {
	p := NewProvider(Set{Orders: &fakeOrders{name: "a"}})

	o, err := p.Orders()
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	id, _ := o.CreateOrder(context.Background(), Order{})
	if id != "a" {
		t.Errorf("got %q, want a", id)
	}

	p.Reconfigure(Set{Orders: &fakeOrders{name: "b"}})
	o, _ = p.Orders()
	id, _ = o.CreateOrder(context.Background(), Order{})
	if id != "b" {
		t.Errorf("after reconfigure got %q, want b", id)
	}
}

func TestProviderNotConfigured(t *testing.T) {
	p := NewProvider(Set{})
	checks := map[string]func() error{
		"orders":      func() error { _, err := p.Orders(); return err },
		"comments":    func() error { _, err := p.Comments(); return err },
		"snapshots":   func() error { _, err := p.Snapshots(); return err },
		"feeds":       func() error { _, err := p.Feeds(); return err },
		"provisioner": func() error { _, err := p.Provisioner(); return err },
	}
	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			if err := check(); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("expected ErrNotConfigured, got %v", err)
			}
		})
	}
}

func TestProviderConcurrentSwap(t *testing.T) {
	p := NewProvider(Set{Orders: &fakeOrders{name: "a"}})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Reconfigure(Set{Orders: &fakeOrders{name: "b"}})
		}()
		go func() {
			defer wg.Done()
			if _, err := p.Orders(); err != nil {
				t.Errorf("orders: %v", err)
			}
		}()
	}
	wg.Wait()
}
