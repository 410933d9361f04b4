package client

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/pkg/log"
)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// RegisterDriver makes a client factory available under the given name.
// Duplicate registration panics, like database/sql.Register.
func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if f == nil {
		panic("client: RegisterDriver factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("client: RegisterDriver called twice for driver " + name)
	}
	drivers[name] = f
}

// Driver returns the factory registered under name.
func Driver(name string) (Factory, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()

	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("client: unknown driver %q", name)
	}
	return f, nil
}

func init() {
	RegisterDriver("noop", noopFactory{})
}

// noopFactory backs the "noop" driver: a stand-in used in local development
// and smoke tests when no real messaging driver is linked in. Clients accept
// every operation, report an immediate CONNECTED transition, and hold no
// network resources.
type noopFactory struct{}

func (noopFactory) Create(ctx context.Context, opts CreateOptions, ev Events) (Client, error) {
	c := &noopClient{session: opts.Session}
	if ev.OnStateChange != nil {
		ev.OnStateChange("CONNECTED")
	}
	log.Ctx(ctx).Info("noop client created", zap.String(log.FieldNameSession, opts.Session))
	return c, nil
}

type noopClient struct {
	session string
}

func (c *noopClient) SendText(ctx context.Context, number, content string) error {
	log.Ctx(ctx).Debug("noop send text",
		zap.String(log.FieldNameSession, c.session),
		zap.String("number", number),
	)
	return nil
}

func (c *noopClient) SendButtons(ctx context.Context, number, title string, buttons []Button, content string) error {
	log.Ctx(ctx).Debug("noop send buttons",
		zap.String(log.FieldNameSession, c.session),
		zap.String("number", number),
		zap.Int("buttons", len(buttons)),
	)
	return nil
}

func (c *noopClient) Chats(ctx context.Context) ([]Chat, error) {
	return nil, nil
}

func (c *noopClient) Logout(ctx context.Context) error {
	return nil
}
