package manager

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/internal/notifier"
	"github.com/lk2023060901/sessiongate-go/internal/registry"
	"github.com/lk2023060901/sessiongate-go/internal/store"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

// memStore is an in-memory Store used by the tests.
type memStore struct {
	mu      sync.Mutex
	records []store.SessionRecord

	loadErr error
	putErr  error
}

func (s *memStore) Load(ctx context.Context) ([]store.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	out := make([]store.SessionRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memStore) Put(ctx context.Context, rec store.SessionRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return false, s.putErr
	}
	if store.IndexOf(s.records, rec.Session) >= 0 {
		return false, nil
	}
	s.records = append(s.records, rec)
	return true, nil
}

func (s *memStore) SetReady(ctx context.Context, session string, ready bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := store.IndexOf(s.records, session)
	if i < 0 {
		return false, nil
	}
	s.records[i].Ready = ready
	return true, nil
}

func (s *memStore) Delete(ctx context.Context, session string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := store.IndexOf(s.records, session)
	if i < 0 {
		return false, nil
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	return true, nil
}

func (s *memStore) get(session string) (store.SessionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := store.IndexOf(s.records, session)
	if i < 0 {
		return store.SessionRecord{}, false
	}
	return s.records[i], true
}

// recordingNotifier captures every published event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	event   string
	payload any
}

func (n *recordingNotifier) BroadcastAll(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{event, payload})
}

func (n *recordingNotifier) SendTo(obs notifier.Observer, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, publishedEvent{event, payload})
}

func (n *recordingNotifier) byEvent(event string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events {
		if e.event == event {
			out = append(out, e.payload)
		}
	}
	return out
}

// scriptedFactory hands out fake clients and can fail selected sessions.
// With eagerConnect set it reports CONNECTED before Create returns, like a
// driver resuming an already paired session.
type scriptedFactory struct {
	mu           sync.Mutex
	failFor      map[string]error
	created      []string
	events       map[string]client.Events
	eagerConnect bool
}

func newScriptedFactory() *scriptedFactory {
	return &scriptedFactory{
		failFor: make(map[string]error),
		events:  make(map[string]client.Events),
	}
}

func (f *scriptedFactory) Create(ctx context.Context, opts client.CreateOptions, ev client.Events) (client.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[opts.Session]; ok {
		return nil, err
	}
	f.created = append(f.created, opts.Session)
	f.events[opts.Session] = ev
	if f.eagerConnect && ev.OnStateChange != nil {
		ev.OnStateChange(StateConnected)
	}
	return &fakeClient{}, nil
}

func (f *scriptedFactory) eventsOf(session string) client.Events {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[session]
}

func (f *scriptedFactory) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeClient struct {
	mu        sync.Mutex
	chats     []client.Chat
	logoutErr error
	logouts   int
}

func (c *fakeClient) SendText(ctx context.Context, number, content string) error { return nil }

func (c *fakeClient) SendButtons(ctx context.Context, number, title string, buttons []client.Button, content string) error {
	return nil
}

func (c *fakeClient) Chats(ctx context.Context) ([]client.Chat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chats, nil
}

func (c *fakeClient) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

type ManagerSuite struct {
	suite.Suite

	ctx      context.Context
	factory  *scriptedFactory
	store    *memStore
	registry *registry.Registry
	notifier *recordingNotifier
	manager  *Manager
}

func (s *ManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.factory = newScriptedFactory()
	s.store = &memStore{}
	s.registry = registry.New()
	s.notifier = &recordingNotifier{}
	s.manager = New(s.factory, s.store, s.registry, s.notifier)
}

func (s *ManagerSuite) TestCreate() {
	err := s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha", Company: "acme"})
	s.NoError(err)

	h, ok := s.registry.Get("alpha")
	s.True(ok)
	s.Equal("acme", h.Company)

	rec, ok := s.store.get("alpha")
	s.True(ok)
	s.False(rec.Ready)
}

func (s *ManagerSuite) TestCreateMissingSession() {
	err := s.manager.Create(s.ctx, client.CreateOptions{})
	s.True(errors.Is(err, serr.ErrParameterMissing))
}

func (s *ManagerSuite) TestCreateDuplicate() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))

	err := s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"})
	s.True(errors.Is(err, serr.ErrSessionDuplicate))
	s.Equal(1, s.factory.createCount())
}

func (s *ManagerSuite) TestCreateFactoryFailure() {
	s.factory.failFor["alpha"] = errors.New("dial refused")

	err := s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"})
	s.True(errors.Is(err, serr.ErrClientConnect))

	_, ok := s.registry.Get("alpha")
	s.False(ok)
	_, ok = s.store.get("alpha")
	s.False(ok)

	// A failed attempt must not poison later ones.
	delete(s.factory.failFor, "alpha")
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))
}

func (s *ManagerSuite) TestConcurrentCreateSameID() {
	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.True(errors.Is(err, serr.ErrSessionDuplicate))
		}
	}
	s.Equal(1, succeeded)
	s.Equal(1, s.registry.Count())
	s.Equal(1, s.factory.createCount())
}

func (s *ManagerSuite) TestStateChangeConnectedMarksReady() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))

	s.factory.eventsOf("alpha").OnStateChange(StateConnected)

	rec, ok := s.store.get("alpha")
	s.True(ok)
	s.True(rec.Ready)

	payloads := s.notifier.byEvent(EventMessage)
	s.Require().NotEmpty(payloads)
	s.Equal(notifier.StatusPayload{Session: "alpha", Status: StateConnected}, payloads[len(payloads)-1])
}

func (s *ManagerSuite) TestCreateConnectedBeforeReturn() {
	s.factory.eagerConnect = true

	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "acct1"}))

	rec, ok := s.store.get("acct1")
	s.Require().True(ok)
	s.True(rec.Ready)

	payloads := s.notifier.byEvent(EventMessage)
	s.Require().NotEmpty(payloads)
	s.Equal(notifier.StatusPayload{Session: "acct1", Status: StateConnected}, payloads[0])
}

func (s *ManagerSuite) TestStateChangeUnknownRecordNotCreated() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))
	_, err := s.store.Delete(s.ctx, "alpha")
	s.NoError(err)

	s.factory.eventsOf("alpha").OnStateChange(StateConnected)

	_, ok := s.store.get("alpha")
	s.False(ok)
}

func (s *ManagerSuite) TestStateChangeOtherStatesRelayedOnly() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))

	s.factory.eventsOf("alpha").OnStateChange("PAIRING")

	rec, _ := s.store.get("alpha")
	s.False(rec.Ready)
	payloads := s.notifier.byEvent(EventMessage)
	s.Require().NotEmpty(payloads)
	s.Equal(notifier.StatusPayload{Session: "alpha", Status: "PAIRING"}, payloads[len(payloads)-1])
}

func (s *ManagerSuite) TestQRRelay() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))

	s.factory.eventsOf("alpha").OnQR("base64-image")

	payloads := s.notifier.byEvent(EventQRCode)
	s.Require().Len(payloads, 1)
	s.Equal(notifier.QRPayload{Session: "alpha", Source: "base64-image"}, payloads[0])
}

func (s *ManagerSuite) TestLogout() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))
	h, _ := s.registry.Get("alpha")
	cli := h.Client.(*fakeClient)

	s.NoError(s.manager.Logout(s.ctx, "alpha"))

	s.Equal(1, cli.logouts)
	_, ok := s.registry.Get("alpha")
	s.False(ok)
	_, ok = s.store.get("alpha")
	s.False(ok)

	payloads := s.notifier.byEvent(EventMessage)
	s.Require().NotEmpty(payloads)
	s.Equal(notifier.StatusPayload{Session: "alpha", Status: StateDisconnected}, payloads[len(payloads)-1])
}

func (s *ManagerSuite) TestLogoutUnknownSession() {
	err := s.manager.Logout(s.ctx, "ghost")
	s.True(errors.Is(err, serr.ErrSessionNotFound))
}

func (s *ManagerSuite) TestLogoutClientFailureKeepsSession() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))
	h, _ := s.registry.Get("alpha")
	h.Client.(*fakeClient).logoutErr = errors.New("network down")

	err := s.manager.Logout(s.ctx, "alpha")
	s.True(errors.Is(err, serr.ErrClientLogout))

	_, ok := s.registry.Get("alpha")
	s.True(ok)
	_, ok = s.store.get("alpha")
	s.True(ok)
}

func (s *ManagerSuite) TestRestoreAll() {
	s.store.records = []store.SessionRecord{
		{Session: "alpha", Ready: true},
		{Session: "beta"},
	}

	s.NoError(s.manager.RestoreAll(s.ctx))

	s.Equal(2, s.registry.Count())
	// The persisted ready flag is left untouched by restore.
	rec, _ := s.store.get("alpha")
	s.True(rec.Ready)
}

func (s *ManagerSuite) TestRestoreAllContinuesPastFailures() {
	s.store.records = []store.SessionRecord{
		{Session: "broken"},
		{Session: "fine"},
	}
	s.factory.failFor["broken"] = errors.New("no auth data")

	s.NoError(s.manager.RestoreAll(s.ctx))

	_, ok := s.registry.Get("broken")
	s.False(ok)
	_, ok = s.registry.Get("fine")
	s.True(ok)
}

func (s *ManagerSuite) TestRestoreAllLoadFailure() {
	s.store.loadErr = serr.WrapErrStoreCorrupt("sessions.db", errors.New("bad page"))

	err := s.manager.RestoreAll(s.ctx)
	s.True(errors.Is(err, serr.ErrStoreCorrupt))
}

func (s *ManagerSuite) TestSnapshotForReportsNotReady() {
	s.store.records = []store.SessionRecord{
		{Session: "alpha", Ready: true},
		{Session: "beta"},
	}

	s.NoError(s.manager.SnapshotFor(s.ctx, nil))

	payloads := s.notifier.byEvent(EventInitialize)
	s.Require().Len(payloads, 1)
	snapshot := payloads[0].(notifier.SnapshotPayload)
	s.Equal([]notifier.SessionState{
		{Session: "alpha", Ready: false},
		{Session: "beta", Ready: false},
	}, snapshot.Sessions)
}

func (s *ManagerSuite) TestFindGroupByName() {
	s.NoError(s.manager.Create(s.ctx, client.CreateOptions{Session: "alpha"}))
	h, _ := s.registry.Get("alpha")
	h.Client.(*fakeClient).chats = []client.Chat{
		{ID: "1", Name: "team", IsGroup: false},
		{ID: "2", Name: "team", IsGroup: true},
	}

	group, err := s.manager.FindGroupByName(s.ctx, "alpha", "team")
	s.NoError(err)
	s.Equal("2", group.ID)

	_, err = s.manager.FindGroupByName(s.ctx, "alpha", "missing")
	s.True(errors.Is(err, serr.ErrGroupNotFound))

	_, err = s.manager.FindGroupByName(s.ctx, "ghost", "team")
	s.True(errors.Is(err, serr.ErrSessionNotFound))
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}
