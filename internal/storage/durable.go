package storage

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tk0miya/roadside-station-maps/internal/metrics"
)

// Backend is a durable key/value space partitioned by profile
type Backend interface {
	Get(ctx context.Context, profile, key string) (string, bool, error)
	Set(ctx context.Context, profile, key, value string) error
	Delete(ctx context.Context, profile, key string) error
	Keys(ctx context.Context, profile string) ([]string, error)
}

// ItemReader is implemented by backends that can load a whole profile in
// one round trip
type ItemReader interface {
	Items(ctx context.Context, profile string) (map[string]string, error)
}

// ProfileLister is implemented by backends that can enumerate profiles
type ProfileLister interface {
	Profiles(ctx context.Context) ([]string, error)
}

// Durable is the private Store of one profile
type Durable struct {
	backend Backend
	profile string
	timeout time.Duration
	ctx     context.Context
}

// NewDurable returns a Store over backend for profile. A nil backend
// behaves as unavailable storage.
func NewDurable(backend Backend, profile string, timeout time.Duration) *Durable {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Durable{backend: backend, profile: profile, timeout: timeout, ctx: context.Background()}
}

// WithContext returns a copy whose backend calls are bound to ctx, so
// they stop when ctx is cancelled.
func (d *Durable) WithContext(ctx context.Context) *Durable {
	if ctx == nil {
		panic("nil context")
	}
	d2 := *d
	d2.ctx = ctx
	return &d2
}

// Profile returns the profile this store writes to
func (d *Durable) Profile() string {
	return d.profile
}

func (d *Durable) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.timeout)
}

func (d *Durable) fail(op string, err error) {
	metrics.StorageErrorsTotal.WithLabelValues(op).Inc()
	log.Printf("[Storage] Warning: %s failed for profile %s: %v", op, d.profile, err)
}

func (d *Durable) GetItem(key string) (string, bool) {
	if d.backend == nil {
		return "", false
	}
	ctx, cancel := d.opContext()
	defer cancel()

	value, ok, err := d.backend.Get(ctx, d.profile, key)
	if err != nil {
		d.fail("get", err)
		return "", false
	}
	if !ok || !IsStoredValue(value) {
		return "", false
	}
	return value, true
}

func (d *Durable) SetItem(key, value string) {
	if !IsStoredValue(value) {
		d.RemoveItem(key)
		return
	}
	if d.backend == nil {
		return
	}
	ctx, cancel := d.opContext()
	defer cancel()

	if err := d.backend.Set(ctx, d.profile, key, value); err != nil {
		d.fail("set", err)
	}
}

func (d *Durable) RemoveItem(key string) {
	if d.backend == nil {
		return
	}
	ctx, cancel := d.opContext()
	defer cancel()

	if err := d.backend.Delete(ctx, d.profile, key); err != nil {
		d.fail("delete", err)
	}
}

// ListItems returns the stored station ids. Keys that are not all
// digits belong to something else and are ignored.
func (d *Durable) ListItems() []string {
	if d.backend == nil {
		return nil
	}
	ctx, cancel := d.opContext()
	defer cancel()

	keys, err := d.backend.Keys(ctx, d.profile)
	if err != nil {
		d.fail("keys", err)
		return nil
	}

	items := make([]string, 0, len(keys))
	for _, k := range keys {
		if IsStationKey(k) {
			items = append(items, k)
		}
	}
	return items
}

// Items returns every valid entry of the profile. Backends implementing
// ItemReader answer in one call; others fall back to a Get per key.
func (d *Durable) Items() map[string]string {
	out := make(map[string]string)
	if d.backend == nil {
		return out
	}
	reader, ok := d.backend.(ItemReader)
	if !ok {
		for _, key := range d.ListItems() {
			if value, ok := d.GetItem(key); ok {
				out[key] = value
			}
		}
		return out
	}

	ctx, cancel := d.opContext()
	defer cancel()
	all, err := reader.Items(ctx, d.profile)
	if err != nil {
		d.fail("items", err)
		return out
	}
	for k, v := range all {
		if IsStationKey(k) && IsStoredValue(v) {
			out[k] = v
		}
	}
	return out
}

// MemoryBackend keeps profiles in process memory
type MemoryBackend struct {
	mu       sync.RWMutex
	profiles map[string]map[string]string
}

// NewMemoryBackend returns an empty MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{profiles: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Get(_ context.Context, profile, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.profiles[profile][key]
	return v, ok, nil
}

func (m *MemoryBackend) Set(_ context.Context, profile, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.profiles[profile]
	if !ok {
		items = make(map[string]string)
		m.profiles[profile] = items
	}
	items[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, profile, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.profiles[profile], key)
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, profile string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.profiles[profile]))
	for k := range m.profiles[profile] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryBackend) Items(_ context.Context, profile string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make(map[string]string, len(m.profiles[profile]))
	for k, v := range m.profiles[profile] {
		items[k] = v
	}
	return items, nil
}

// Profiles lists profiles holding at least one entry
func (m *MemoryBackend) Profiles(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profiles := make([]string, 0, len(m.profiles))
	for p, items := range m.profiles {
		if len(items) > 0 {
			profiles = append(profiles, p)
		}
	}
	return profiles, nil
}

var (
	_ Store         = (*Durable)(nil)
	_ ItemSource    = (*Durable)(nil)
	_ Backend       = (*MemoryBackend)(nil)
	_ ItemReader    = (*MemoryBackend)(nil)
	_ ProfileLister = (*MemoryBackend)(nil)
)
