// Package events publishes domain events after successful state changes.
// Publishing is best-effort: callers log failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/appctx"
)

// Event names, appended to the configured subject prefix.
const (
	AoRRegistered  = "aor.registered"
	CompanyCreated = "company.created"
	InviteCreated  = "invite.created"
	InviteAccepted = "invite.accepted"
	InviteRejected = "invite.rejected"
)

// Envelope is the wire form of every event.
type Envelope struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt int64           `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps data for the named event.
func NewEnvelope(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", name, err)
	}
	return json.Marshal(Envelope{
		ID:         uuid.NewString(),
		Type:       name,
		OccurredAt: time.Now().UnixMilli(),
		Data:       raw,
	})
}

// Publisher sends events. Name is one of the event constants.
type Publisher interface {
	Publish(ctx context.Context, name string, data any) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }
func (Noop) Close() error                               { return nil }

// Config is the driver-independent publisher configuration.
type Config struct {
	URL           string
	SubjectPrefix string
}

// Subject joins prefix and name with a dot.
func (c Config) Subject(name string) string {
	if c.SubjectPrefix == "" {
		return name
	}
	return c.SubjectPrefix + "." + name
}

// DriverFactory builds a publisher.
type DriverFactory func(cfg Config, log *slog.Logger) (Publisher, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]DriverFactory{
		"none": func(Config, *slog.Logger) (Publisher, error) { return Noop{}, nil },
	}
)

// RegisterDriver registers a driver factory. Called from init() in driver packages.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New builds the named driver. An empty name means "none".
func New(driver string, cfg Config, log *slog.Logger) (Publisher, error) {
	if driver == "" {
		driver = "none"
	}
	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown events driver %q (registered: %v)", driver, Drivers())
	}
	return factory(cfg, log)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Emit publishes and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, name string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, name, data); err != nil {
		appctx.GetLogger(ctx).Warn("event publish failed", "event", name, "error", err)
	}
}
