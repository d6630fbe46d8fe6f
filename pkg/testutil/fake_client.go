// Package testutil wraps the controller-runtime fake client with failure
// injection and call recording for controller tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/api/meta"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// FailureConfig configures when the fake client should return errors.
// Each hook receives the object (or key) of the call and returns a non-nil
// error to fail it.
type FailureConfig struct {
	OnGet          func(key client.ObjectKey) error
	OnList         func(list client.ObjectList) error
	OnCreate       func(obj client.Object) error
	OnUpdate       func(obj client.Object) error
	OnPatch        func(obj client.Object) error
	OnDelete       func(obj client.Object) error
	OnStatusUpdate func(obj client.Object) error
	OnStatusPatch  func(obj client.Object) error
}

// FakeClient injects failures into a base client and records the names of
// created and deleted objects.
type FakeClient struct {
	client.Client
	config *FailureConfig

	mu      sync.Mutex
	created []string
	deleted []string
}

// NewFakeClientWithFailures wraps baseClient. A nil config injects nothing.
func NewFakeClientWithFailures(baseClient client.Client, config *FailureConfig) *FakeClient {
	if config == nil {
		config = &FailureConfig{}
	}
	return &FakeClient{Client: baseClient, config: config}
}

// Created returns "Kind/name" of every successful Create, in order.
func (c *FakeClient) Created() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}

// Deleted returns "Kind/name" of every successful Delete, in order.
func (c *FakeClient) Deleted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deleted...)
}

func (c *FakeClient) record(into *[]string, obj client.Object) {
	kind := fmt.Sprintf("%T", obj)
	if gvks, _, err := c.Scheme().ObjectKinds(obj); err == nil && len(gvks) > 0 {
		kind = gvks[0].Kind
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	*into = append(*into, kind+"/"+obj.GetName())
}

func (c *FakeClient) Get(ctx context.Context, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
	if err := call(c.config.OnGet, key); err != nil {
		return err
	}
	return c.Client.Get(ctx, key, obj, opts...)
}

func (c *FakeClient) List(ctx context.Context, list client.ObjectList, opts ...client.ListOption) error {
	if err := call(c.config.OnList, list); err != nil {
		return err
	}
	return c.Client.List(ctx, list, opts...)
}

func (c *FakeClient) Create(ctx context.Context, obj client.Object, opts ...client.CreateOption) error {
	if err := call(c.config.OnCreate, obj); err != nil {
		return err
	}
	if err := c.Client.Create(ctx, obj, opts...); err != nil {
		return err
	}
	c.record(&c.created, obj)
	return nil
}

func (c *FakeClient) Update(ctx context.Context, obj client.Object, opts ...client.UpdateOption) error {
	if err := call(c.config.OnUpdate, obj); err != nil {
		return err
	}
	return c.Client.Update(ctx, obj, opts...)
}

func (c *FakeClient) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.PatchOption) error {
	if err := call(c.config.OnPatch, obj); err != nil {
		return err
	}
	return c.Client.Patch(ctx, obj, patch, opts...)
}

func (c *FakeClient) Delete(ctx context.Context, obj client.Object, opts ...client.DeleteOption) error {
	if err := call(c.config.OnDelete, obj); err != nil {
		return err
	}
	if err := c.Client.Delete(ctx, obj, opts...); err != nil {
		return err
	}
	c.record(&c.deleted, obj)
	return nil
}

func (c *FakeClient) Status() client.SubResourceWriter {
	return &statusWriterWithFailures{SubResourceWriter: c.Client.Status(), config: c.config}
}

type statusWriterWithFailures struct {
	client.SubResourceWriter
	config *FailureConfig
}

func (s *statusWriterWithFailures) Update(ctx context.Context, obj client.Object, opts ...client.SubResourceUpdateOption) error {
	if err := call(s.config.OnStatusUpdate, obj); err != nil {
		return err
	}
	return s.SubResourceWriter.Update(ctx, obj, opts...)
}

func (s *statusWriterWithFailures) Patch(ctx context.Context, obj client.Object, patch client.Patch, opts ...client.SubResourcePatchOption) error {
	if err := call(s.config.OnStatusPatch, obj); err != nil {
		return err
	}
	return s.SubResourceWriter.Patch(ctx, obj, patch, opts...)
}

func call[T any](hook func(T) error, arg T) error {
	if hook == nil {
		return nil
	}
	return hook(arg)
}

// FailOnObjectName returns an error if the object name matches.
func FailOnObjectName(name string, err error) func(client.Object) error {
	return func(obj client.Object) error {
		accessor, metaErr := meta.Accessor(obj)
		if metaErr != nil {
			panic(fmt.Sprintf("meta.Accessor failed: %v", metaErr))
		}
		if accessor.GetName() == name {
			return err
		}
		return nil
	}
}

// FailOnKeyName returns an error if the key name matches.
func FailOnKeyName(name string, err error) func(client.ObjectKey) error {
	return func(key client.ObjectKey) error {
		if key.Name == name {
			return err
		}
		return nil
	}
}

// FailOnType returns an error for every object of type T.
func FailOnType[T client.Object](err error) func(client.Object) error {
	return func(obj client.Object) error {
		if _, ok := obj.(T); ok {
			return err
		}
		return nil
	}
}

// FailObjAfterNCalls returns an Object failure function that fails after N
// successful calls.
func FailObjAfterNCalls(n int, err error) func(client.Object) error {
	var mu sync.Mutex
	count := 0
	return func(client.Object) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		if count > n {
			return err
		}
		return nil
	}
}

// ErrInjected is the generic error injected by tests.
var ErrInjected = errors.New("injected test error")
