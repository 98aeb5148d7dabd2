package acceptance

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/dto"
)

func (s *Suite) signIn() dto.SessionResponse {
	var session dto.SessionResponse
	status := s.do(http.MethodPost, "/api/v1/session/login", dto.SignInRequest{
		PhoneNumber: testPhone,
		Password:    testPassword,
	}, &session)
	s.Require().Equal(http.StatusOK, status)
	return session
}

func (s *Suite) waitConnection(state string) {
	s.Require().Eventually(func() bool {
		var conn dto.ConnectionResponse
		return s.do(http.MethodGet, "/api/v1/connection", nil, &conn) == http.StatusOK && conn.State == state
	}, waitTimeout, pollEvery, "connection never reached %s", state)
}

func (s *Suite) notifications() dto.NotificationListResponse {
	var list dto.NotificationListResponse
	s.Require().Equal(http.StatusOK, s.do(http.MethodGet, "/api/v1/notifications", nil, &list))
	return list
}

func (s *Suite) TestSignIn_ConnectsAndReceivesPushes() {
	session := s.signIn()
	s.Equal("authenticated", session.State)
	s.Require().NotNil(session.Profile)
	s.Equal("shop-1", session.Profile.ShopID)

	remote := s.receiveSocket()
	s.waitConnection("connected")

	_, _, handshakes, _ := s.API.stats()
	s.Equal([]string{"access-1"}, handshakes, "access credential presented at handshake")

	n1 := gin.H{"id": "n1", "type": "low_stock", "message": "Cola 0.5L is running low", "isRead": false, "createdAt": "2026-10-01T08:00:00Z"}
	s.Require().NoError(remote.push(n1))
	s.Require().NoError(remote.push(n1))
	s.Require().NoError(remote.push(gin.H{"id": "n2", "type": "sale_completed", "message": "Sale #12 completed", "createdAt": "2026-10-01T09:00:00Z"}))

	s.Require().Eventually(func() bool {
		return len(s.notifications().Notifications) == 2
	}, waitTimeout, pollEvery)

	list := s.notifications()
	s.Equal(2, list.UnreadCount, "duplicate delivery absorbed")
	s.Equal("n2", list.Notifications[0].ID)
	s.Equal("n1", list.Notifications[1].ID)
}

func (s *Suite) TestSignIn_WrongPassword() {
	var errResp dto.ErrorResponse
	status := s.do(http.MethodPost, "/api/v1/session/login", dto.SignInRequest{
		PhoneNumber: testPhone,
		Password:    "wrong",
	}, &errResp)

	s.Equal(http.StatusUnauthorized, status)
	s.Equal("Unauthorized", errResp.Error)
	s.Empty(s.Redis.Keys(), "nothing persisted")
}

func (s *Suite) TestSignIn_CredentialsSealedAtRest() {
	s.signIn()

	keys := s.Redis.Keys()
	s.ElementsMatch([]string{"shop-session:accessToken", "shop-session:refreshToken"}, keys)

	for _, key := range keys {
		value, err := s.Redis.Get(key)
		s.Require().NoError(err)
		s.NotContains(value, "access-1")
		s.NotContains(value, "refresh-1")
	}

	s.True(s.Redis.TTL("shop-session:accessToken") > 0, "access slot expires")
}

func (s *Suite) TestGatedRoutesRequireSession() {
	var errResp dto.ErrorResponse
	status := s.do(http.MethodGet, "/api/v1/notifications", nil, &errResp)

	s.Equal(http.StatusUnauthorized, status)
	s.Equal("Unauthorized", errResp.Error)
}

func (s *Suite) TestInitialPullLoadsHistory() {
	s.API.seed(
		gin.H{"id": "old-1", "type": "out_of_stock", "message": "Bread is out of stock", "isRead": true, "createdAt": "2026-09-30T08:00:00Z"},
		gin.H{"id": "old-2", "type": "low_stock", "message": "Milk is low", "isRead": false, "createdAt": "2026-09-30T09:00:00Z"},
	)

	s.signIn()

	s.Require().Eventually(func() bool {
		return len(s.notifications().Notifications) == 2
	}, waitTimeout, pollEvery)

	list := s.notifications()
	s.Equal(1, list.UnreadCount)
	s.Equal("old-2", list.Notifications[0].ID)
}

func (s *Suite) TestRenewal_RetriesAndReconnects() {
	s.signIn()
	remote := s.receiveSocket()
	s.waitConnection("connected")

	s.Require().NoError(remote.push(gin.H{"id": "n1", "type": "low_stock", "message": "Cola is low"}))
	s.Require().Eventually(func() bool {
		return s.notifications().UnreadCount == 1
	}, waitTimeout, pollEvery)

	s.API.revokeAccess()

	var list dto.NotificationListResponse
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/notifications/n1/read", nil, &list))
	s.Zero(list.UnreadCount)

	refreshCalls, _, _, patched := s.API.stats()
	s.Equal(1, refreshCalls, "renewed exactly once")
	s.Equal([]string{"n1"}, patched, "request retried with the renewed credential")
	s.Equal("access-2", s.App.Client().Credentials.GetAccess(context.Background()))
	s.Equal("refresh-2", s.App.Client().Credentials.GetRefresh(context.Background()))

	// The handshake credential cannot be swapped in place, so the channel reconnects.
	select {
	case <-remote.closed:
	case <-time.After(waitTimeout):
		s.Fail("old connection never closed")
	}
	s.receiveSocket()
	s.waitConnection("connected")

	_, _, handshakes, _ := s.API.stats()
	s.Equal([]string{"access-1", "access-2"}, handshakes)
}

func (s *Suite) TestRenewalFailure_ExpiresSession() {
	s.signIn()
	remote := s.receiveSocket()
	s.waitConnection("connected")

	s.Require().NoError(remote.push(gin.H{"id": "n1", "type": "low_stock", "message": "Cola is low"}))
	s.Require().Eventually(func() bool {
		return s.notifications().UnreadCount == 1
	}, waitTimeout, pollEvery)

	events := s.openEvents()
	defer events.Close()

	s.API.revokeAccess()
	s.API.failRefresh()

	s.do(http.MethodPost, "/api/v1/notifications/n1/read", nil, nil)

	var session dto.SessionResponse
	s.Require().Eventually(func() bool {
		s.do(http.MethodGet, "/api/v1/session", nil, &session)
		return session.State == "unauthenticated"
	}, waitTimeout, pollEvery)
	s.Equal("expired", session.Reason)
	s.Nil(session.Profile)

	s.NotEmpty(events.until("banner", "session_expired"))

	select {
	case <-remote.closed:
	case <-time.After(waitTimeout):
		s.Fail("connection not closed on expiry")
	}
	s.Empty(s.Redis.Keys(), "credentials cleared")
}

func (s *Suite) TestSignOut() {
	s.signIn()
	remote := s.receiveSocket()
	s.waitConnection("connected")

	var ok dto.SuccessResponse
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/session/logout", nil, &ok))

	_, revoked, _, _ := s.API.stats()
	s.Equal([]string{"refresh-1"}, revoked)

	var session dto.SessionResponse
	s.do(http.MethodGet, "/api/v1/session", nil, &session)
	s.Equal("unauthenticated", session.State)
	s.Equal("user", session.Reason)
	s.Empty(s.Redis.Keys())

	select {
	case <-remote.closed:
	case <-time.After(waitTimeout):
		s.Fail("connection not closed on sign-out")
	}

	// Signing out twice is harmless.
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/api/v1/session/logout", nil, nil))
}

func (s *Suite) TestNativeNotificationsFollowPermission() {
	s.signIn()
	remote := s.receiveSocket()
	s.waitConnection("connected")

	var perm dto.PermissionResponse
	s.Require().Equal(http.StatusOK, s.do(http.MethodPut, "/api/v1/notifications/permission", dto.PermissionRequest{Permission: "granted"}, &perm))
	s.Equal("granted", perm.Permission)

	events := s.openEvents()
	defer events.Close()

	s.Require().NoError(remote.push(gin.H{"id": "n7", "type": "out_of_stock", "message": "Bread is out of stock"}))

	s.Contains(events.until("banner", `"notificationId":"n7"`), "Out of stock")
	s.Contains(events.until("native", `"action":"show"`), `"id":"n7"`)

	// Dismissed automatically after the configured interval.
	s.Contains(events.until("native", `"action":"dismiss"`), `"id":"n7"`)
}

func (s *Suite) TestPing() {
	s.signIn()
	s.receiveSocket()
	s.waitConnection("connected")

	s.Equal(http.StatusAccepted, s.do(http.MethodPost, "/api/v1/connection/ping", nil, nil))
}

// eventStream reads the app's server-sent events. Events from different
// topics may interleave in any order, so unmatched ones are kept for later.
type eventStream struct {
	s       *Suite
	resp    *http.Response
	lines   chan string
	pending []sseEvent
	name    string
}

type sseEvent struct {
	name string
	data string
}

func (s *Suite) openEvents() *eventStream {
	resp, err := http.Get(s.BaseURL + "/api/v1/events")
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	es := &eventStream{s: s, resp: resp, lines: make(chan string, 64)}
	go func() {
		defer close(es.lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			es.lines <- scanner.Text()
		}
	}()

	// The initial snapshot proves the subscriptions are in place.
	es.until("connection", "")
	es.pending = nil
	return es
}

// until returns the data of the next event called name whose data contains substr.
func (e *eventStream) until(name, substr string) string {
	for i, ev := range e.pending {
		if ev.name == name && strings.Contains(ev.data, substr) {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return ev.data
		}
	}

	deadline := time.After(waitTimeout)
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				e.s.T().Fatalf("event stream ended before %q", name)
				return ""
			}
			switch {
			case strings.HasPrefix(line, "event:"):
				e.name = strings.TrimPrefix(line, "event:")
			case strings.HasPrefix(line, "data:"):
				ev := sseEvent{name: e.name, data: strings.TrimPrefix(line, "data:")}
				if ev.name == name && strings.Contains(ev.data, substr) {
					return ev.data
				}
				e.pending = append(e.pending, ev)
			}
		case <-deadline:
			e.s.T().Fatalf("no %q event with %q within %s", name, substr, waitTimeout)
			return ""
		}
	}
}

func (e *eventStream) Close() {
	_ = e.resp.Body.Close()
}
