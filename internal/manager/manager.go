// Package manager owns the session lifecycle: creating clients, restoring
// persisted sessions on startup, relaying lifecycle events to observers, and
// tearing sessions down on logout.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/internal/notifier"
	"github.com/lk2023060901/sessiongate-go/internal/registry"
	"github.com/lk2023060901/sessiongate-go/internal/store"
	"github.com/lk2023060901/sessiongate-go/pkg/log"
	"github.com/lk2023060901/sessiongate-go/pkg/util/retry"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

// Connection states relayed to observers verbatim. Drivers report the
// intermediate states; the manager only acts on CONNECTED and emits
// DISCONNECTED itself on logout.
const (
	StateConnecting      = "CONNECTING"
	StateAwaitingPairing = "AWAITING_PAIRING"
	StateConnected       = "CONNECTED"
	StateDisconnected    = "DISCONNECTED"
)

// Event names on the observer channel.
const (
	EventQRCode     = "qrcode"
	EventMessage    = "message"
	EventInitialize = "initialize"
)

// Store is the slice of the session store the manager depends on.
type Store interface {
	Load(ctx context.Context) ([]store.SessionRecord, error)
	Put(ctx context.Context, rec store.SessionRecord) (bool, error)
	SetReady(ctx context.Context, session string, ready bool) (bool, error)
	Delete(ctx context.Context, session string) (bool, error)
}

// Manager drives session lifecycles. All methods are safe for concurrent
// use.
type Manager struct {
	factory  client.Factory
	store    Store
	registry *registry.Registry
	notifier notifier.Notifier

	// inflight holds session ids with a create in progress, so two
	// concurrent creates of the same id cannot both reach the factory.
	mu       sync.Mutex
	inflight map[string]struct{}

	created  *atomic.Int64
	restored *atomic.Int64
}

func New(factory client.Factory, st Store, reg *registry.Registry, nt notifier.Notifier) *Manager {
	return &Manager{
		factory:  factory,
		store:    st,
		registry: reg,
		notifier: nt,
		inflight: make(map[string]struct{}),
		created:  atomic.NewInt64(0),
		restored: atomic.NewInt64(0),
	}
}

// Create connects a new session and registers it. Fails with
// ErrSessionDuplicate when a session with the same id is live or being
// created. The record is persisted as not ready before the connect attempt,
// since state callbacks may fire before the factory returns; the ready flag
// flips when the client reports CONNECTED.
func (m *Manager) Create(ctx context.Context, opts client.CreateOptions) error {
	if opts.Session == "" {
		return serr.WrapErrParameterMissing("session")
	}

	if err := m.acquireCreate(opts.Session); err != nil {
		return err
	}
	defer m.releaseCreate(opts.Session)

	lg := log.Ctx(ctx).With(zap.String(log.FieldNameSession, opts.Session))

	inserted, err := m.store.Put(ctx, store.SessionRecord{Session: opts.Session})
	if err != nil {
		// The session can still connect; a missing record only costs restore
		// after a process restart.
		lg.Warn("failed to persist session record", zap.Error(err))
	}

	cli, err := m.factory.Create(ctx, opts, m.eventsFor(opts.Session))
	if err != nil {
		lg.Warn("client connect failed", zap.Error(err))
		if inserted {
			if _, derr := m.store.Delete(ctx, opts.Session); derr != nil {
				lg.Warn("failed to remove record of failed session", zap.Error(derr))
			}
		}
		return serr.WrapErrClientConnect(opts.Session, err)
	}

	if err := m.registry.Register(&registry.Handle{
		Session: opts.Session,
		Company: opts.Company,
		Client:  cli,
	}); err != nil {
		// Lost a race that the inflight set should have prevented; shut the
		// fresh client down and surface the duplicate.
		_ = cli.Logout(ctx)
		return err
	}

	m.created.Inc()
	lg.Info("session created", zap.Bool("multidevice", opts.MultiDevice))
	return nil
}

// RestoreAll reconnects every persisted session. Individual failures are
// logged and skipped so one broken session cannot block the rest; only a
// store load failure is fatal.
func (m *Manager) RestoreAll(ctx context.Context) error {
	records, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		rec := rec
		err := retry.Do(ctx, func() error {
			return m.restoreOne(ctx, rec)
		}, retry.Attempts(3), retry.Sleep(500*time.Millisecond))
		if err != nil {
			log.Ctx(ctx).Warn("failed to restore session, skipping",
				zap.String(log.FieldNameSession, rec.Session),
				zap.Error(err),
			)
			continue
		}
		m.restored.Inc()
	}

	log.Ctx(ctx).Info("session restore finished",
		zap.Int("persisted", len(records)),
		zap.Int64("restored", m.restored.Load()),
	)
	return nil
}

func (m *Manager) restoreOne(ctx context.Context, rec store.SessionRecord) error {
	if _, ok := m.registry.Get(rec.Session); ok {
		return nil
	}

	// The persisted ready flag is not trusted and not rewritten here;
	// snapshots report false and the client re-announces CONNECTED itself.
	cli, err := m.factory.Create(ctx, client.CreateOptions{Session: rec.Session}, m.eventsFor(rec.Session))
	if err != nil {
		return serr.WrapErrClientConnect(rec.Session, err)
	}

	if err := m.registry.Register(&registry.Handle{Session: rec.Session, Client: cli}); err != nil {
		_ = cli.Logout(ctx)
		return retry.Unrecoverable(err)
	}
	return nil
}

// Logout tears the session down: terminates the client, removes the
// persisted record, unregisters the handle, and notifies observers. Fails
// with ErrSessionNotFound when no live session exists, and returns without
// mutating anything when the client refuses to log out.
func (m *Manager) Logout(ctx context.Context, session string) error {
	h, ok := m.registry.Get(session)
	if !ok {
		return serr.WrapErrSessionNotFound(session)
	}

	lg := log.Ctx(ctx).With(zap.String(log.FieldNameSession, session))

	if err := h.Client.Logout(ctx); err != nil {
		lg.Warn("client logout failed", zap.Error(err))
		return serr.WrapErrClientLogout(session, err)
	}

	if _, err := m.store.Delete(ctx, session); err != nil {
		// The live teardown already happened; a stale record only costs one
		// failed restore attempt later.
		lg.Warn("failed to delete session record", zap.Error(err))
	}

	if err := m.registry.Unregister(session); err != nil {
		lg.Warn("session vanished from registry during logout", zap.Error(err))
	}

	m.notifier.BroadcastAll(EventMessage, notifier.StatusPayload{
		Session: session,
		Status:  StateDisconnected,
	})
	lg.Info("session logged out")
	return nil
}

// SnapshotFor sends the current persisted session list to one observer as
// an initialize event. Ready flags are reported as false; each session
// re-announces CONNECTED itself once its client confirms the state.
func (m *Manager) SnapshotFor(ctx context.Context, obs notifier.Observer) error {
	records, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	states := make([]notifier.SessionState, 0, len(records))
	for _, rec := range records {
		states = append(states, notifier.SessionState{Session: rec.Session, Ready: false})
	}
	m.notifier.SendTo(obs, EventInitialize, notifier.SnapshotPayload{Sessions: states})
	return nil
}

// FindGroupByName returns the first group chat of the session whose name
// matches exactly.
func (m *Manager) FindGroupByName(ctx context.Context, session, name string) (client.Chat, error) {
	h, ok := m.registry.Get(session)
	if !ok {
		return client.Chat{}, serr.WrapErrSessionNotFound(session)
	}

	chats, err := h.Client.Chats(ctx)
	if err != nil {
		return client.Chat{}, err
	}

	group, found := lo.Find(chats, func(c client.Chat) bool {
		return c.IsGroup && c.Name == name
	})
	if !found {
		return client.Chat{}, serr.WrapErrGroupNotFound(name)
	}
	return group, nil
}

// eventsFor builds the callback set wired into a new client. Callbacks may
// fire on client-owned goroutines, so they only touch concurrency-safe
// collaborators.
func (m *Manager) eventsFor(session string) client.Events {
	return client.Events{
		OnQR: func(qr string) {
			m.notifier.BroadcastAll(EventQRCode, notifier.QRPayload{
				Session: session,
				Source:  qr,
			})
		},
		OnStatus: func(status string) {
			m.notifier.BroadcastAll(EventMessage, notifier.StatusPayload{
				Session: session,
				Status:  status,
			})
		},
		OnStateChange: func(state string) {
			m.handleStateChange(session, state)
		},
	}
}

// handleStateChange relays the state to observers verbatim and keeps the
// persisted ready flag in sync with CONNECTED.
func (m *Manager) handleStateChange(session, state string) {
	m.notifier.BroadcastAll(EventMessage, notifier.StatusPayload{
		Session: session,
		Status:  state,
	})

	if state != StateConnected {
		return
	}

	found, err := m.store.SetReady(context.Background(), session, true)
	if err != nil {
		log.Warn("failed to mark session ready",
			zap.String(log.FieldNameSession, session),
			zap.Error(err),
		)
		return
	}
	if !found {
		// CONNECTED for a session the store never knew about, e.g. the
		// record was deleted while the client was pairing. Do not
		// resurrect it.
		log.Warn("state change for unknown session record",
			zap.String(log.FieldNameSession, session),
			zap.String("state", state),
		)
	}
}

func (m *Manager) acquireCreate(session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[session]; ok {
		return serr.WrapErrSessionDuplicate(session, "create already in progress")
	}
	if _, ok := m.registry.Get(session); ok {
		return serr.WrapErrSessionDuplicate(session)
	}
	m.inflight[session] = struct{}{}
	return nil
}

func (m *Manager) releaseCreate(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inflight, session)
}
