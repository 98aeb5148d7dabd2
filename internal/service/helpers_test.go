package service

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/internal/repository"
	"github.com/prperemyshlev/shop-session/internal/utils"
	"github.com/prperemyshlev/shop-session/pkg/socket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret  = "test-secret-key-that-is-at-least-32-characters-long"
	waitTimeout = 2 * time.Second
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testProfile = domain.Profile{
	UserID:      "user-1",
	ShopID:      "shop-1",
	ShopName:    "Corner Shop",
	PhoneNumber: "+998901234567",
	DisplayName: "Aziz",
	Role:        domain.RoleOwner,
}

// fixture holds the storage-side components shared by most tests.
type fixture struct {
	bus      *EventBus
	blobs    *repository.MemoryBlobStore
	durable  *repository.MemoryBlobStore
	profiles repository.ProfileRepository
	creds    *CredentialStore
	session  *SessionManager
	logger   *zap.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sealer, err := utils.NewSealer(testSecret)
	require.NoError(t, err)

	// Nop: channel goroutines and timers may log after the test returns.
	logger := zap.NewNop()
	f := &fixture{
		bus:     NewEventBus(0),
		blobs:   repository.NewMemoryBlobStore(),
		durable: repository.NewMemoryBlobStore(),
		logger:  logger,
	}
	f.profiles = repository.NewProfileRepository(f.durable)
	f.creds = NewCredentialStore(f.blobs, sealer, 15*time.Minute, 365*24*time.Hour, logger)
	f.session = NewSessionManager(f.creds, f.profiles, f.bus, nil, logger)
	return f
}

// seed stores credentials and profile directly, as a restore from disk would.
func (f *fixture) seed(t *testing.T, access, refresh string, profile *domain.Profile) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.creds.SetAccess(ctx, access))
	require.NoError(t, f.creds.SetRefresh(ctx, refresh))
	if profile != nil {
		require.NoError(t, f.profiles.Save(ctx, profile))
	}
}

// login puts the fixture into an authenticated session.
func (f *fixture) login(t *testing.T, access, refresh string) {
	t.Helper()
	require.NoError(t, f.session.Login(context.Background(), testProfile, access, refresh))
}

// newFakeAPI serves routes on a gin engine standing in for the remote shop API.
func newFakeAPI(t *testing.T, routes func(r *gin.Engine)) *httptest.Server {
	t.Helper()

	router := gin.New()
	routes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for %T", *new(T))
		return *new(T)
	}
}

func assertNothing[T any](t *testing.T, ch <-chan T, within time.Duration) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("unexpected %T: %+v", v, v)
	case <-time.After(within):
	}
}

// fakeConn is a scripted socket.Conn.
type fakeConn struct {
	inbound chan socket.Event
	ends    chan error
	written chan socket.Event

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan socket.Event, 16),
		ends:    make(chan error, 1),
		written: make(chan socket.Event, 16),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadEvent() (socket.Event, error) {
	select {
	case ev := <-c.inbound:
		return ev, nil
	case err := <-c.ends:
		return socket.Event{}, err
	case <-c.closed:
		return socket.Event{}, io.EOF
	}
}

func (c *fakeConn) WriteEvent(ev socket.Event) error {
	select {
	case <-c.closed:
		return errors.New("use of closed connection")
	default:
	}
	c.written <- ev
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ack sends the server's handshake acknowledgement.
func (c *fakeConn) ack() {
	c.inbound <- socket.Event{Name: socket.EventConnected}
}

// drop ends the connection with err.
func (c *fakeConn) drop(err error) {
	c.ends <- err
}

// fakeDialer records handshake tokens and hands out fakeConns.
type fakeDialer struct {
	mu     sync.Mutex
	tokens []string
	err    error
	conns  chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, token string) (socket.Conn, error) {
	d.mu.Lock()
	d.tokens = append(d.tokens, token)
	err := d.err
	d.mu.Unlock()

	if err != nil {
		return nil, &socket.HandshakeError{Err: err}
	}

	conn := newFakeConn()
	d.conns <- conn
	return conn, nil
}

func (d *fakeDialer) failWith(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *fakeDialer) lastToken() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tokens) == 0 {
		return ""
	}
	return d.tokens[len(d.tokens)-1]
}

// recordingHandler collects pushed notifications.
type recordingHandler struct {
	mu    sync.Mutex
	got   []domain.Notification
	calls chan domain.Notification
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(chan domain.Notification, 16)}
}

func (h *recordingHandler) HandlePush(_ context.Context, n domain.Notification) {
	h.mu.Lock()
	h.got = append(h.got, n)
	h.mu.Unlock()
	h.calls <- n
}

// stubNotifier is a NativeNotifier with a fixed permission.
type stubNotifier struct {
	mu         sync.Mutex
	permission domain.Permission
	shown      []string
	dismissed  chan string
}

func newStubNotifier(p domain.Permission) *stubNotifier {
	return &stubNotifier{permission: p, dismissed: make(chan string, 16)}
}

func (s *stubNotifier) Permission(context.Context) domain.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

func (s *stubNotifier) RequestPermission(ctx context.Context) (domain.Permission, error) {
	return s.Permission(ctx), nil
}

func (s *stubNotifier) Show(_ context.Context, id, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, id)
	return nil
}

func (s *stubNotifier) Dismiss(_ context.Context, id string) error {
	s.dismissed <- id
	return nil
}

func (s *stubNotifier) shownIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.shown...)
}
