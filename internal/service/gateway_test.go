package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	refreshPath = "/auth/refresh"
	loginPath   = "/auth/login"
)

// shopAPI is a fake remote API with a protected /orders endpoint that only
// accepts the current access token.
type shopAPI struct {
	mu          sync.Mutex
	validAccess string
	seenAuth    []string
	requestIDs  []string

	refreshCalls atomic.Int32
	refreshDelay time.Duration
	refresh      func(c *gin.Context)
}

func (a *shopAPI) routes(r *gin.Engine) {
	r.GET("/orders", func(c *gin.Context) {
		a.mu.Lock()
		a.seenAuth = append(a.seenAuth, c.GetHeader("Authorization"))
		a.requestIDs = append(a.requestIDs, c.GetHeader("X-Request-ID"))
		valid := "Bearer " + a.validAccess
		a.mu.Unlock()

		if c.GetHeader("Authorization") != valid {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "jwt expired"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []gin.H{{"id": "o1"}}})
	})

	r.POST(refreshPath, func(c *gin.Context) {
		a.refreshCalls.Add(1)
		if a.refreshDelay > 0 {
			time.Sleep(a.refreshDelay)
		}
		a.refresh(c)
	})
}

func (a *shopAPI) authHeaders() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.seenAuth...)
}

func renewTo(access, refresh string) func(c *gin.Context) {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "refresh must be unauthenticated"})
			return
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "refreshToken required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"accessToken": access, "refreshToken": refresh}})
	}
}

func newTestGateway(t *testing.T, f *fixture, api *shopAPI) *Gateway {
	t.Helper()
	srv := newFakeAPI(t, api.routes)
	return NewGateway(srv.Client(), GatewayConfig{
		BaseURL:     srv.URL,
		RefreshPath: refreshPath,
		ExemptPaths: []string{loginPath},
	}, f.creds, f.session, f.bus, nil, f.logger)
}

var ordersRequest = Request{Method: http.MethodGet, Path: "/orders"}

func TestGateway_AttachesCredential(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")
	api := &shopAPI{validAccess: "access-1"}
	g := newTestGateway(t, f, api)

	resp, err := g.Do(context.Background(), ordersRequest)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer access-1"}, api.authHeaders())
	assert.NotEmpty(t, api.requestIDs[0])
	assert.Zero(t, api.refreshCalls.Load())
}

func TestGateway_RenewsAndRetriesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "access-1", "refresh-1")

	api := &shopAPI{validAccess: "access-2"}
	api.refresh = renewTo("access-2", "refresh-2")
	g := newTestGateway(t, f, api)

	refreshed, unsubscribe := f.bus.CredentialRefreshed.Subscribe()
	defer unsubscribe()

	resp, err := g.Do(ctx, ordersRequest)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Bearer access-1", "Bearer access-2"}, api.authHeaders())
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.Equal(t, "access-2", f.creds.GetAccess(ctx))
	assert.Equal(t, "refresh-2", f.creds.GetRefresh(ctx))
	assert.Equal(t, domain.SessionAuthenticated, f.session.State().Status)

	receive(t, refreshed)
}

func TestGateway_SecondUnauthorizedIsReturnedAsIs(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")

	// The endpoint keeps rejecting even the renewed token.
	api := &shopAPI{validAccess: "never"}
	api.refresh = renewTo("access-2", "")
	g := newTestGateway(t, f, api)

	resp, err := g.Do(context.Background(), ordersRequest)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, api.authHeaders(), 2, "exactly one retry")
	assert.EqualValues(t, 1, api.refreshCalls.Load())
	assert.Equal(t, "refresh-1", f.creds.GetRefresh(context.Background()), "refresh kept when not rotated")
}

func TestGateway_RenewalFailureExpiresSession(t *testing.T) {
	tests := []struct {
		name    string
		refresh func(c *gin.Context)
	}{
		{
			name: "non-2xx",
			refresh: func(c *gin.Context) {
				c.JSON(http.StatusUnauthorized, gin.H{"message": "refresh token revoked"})
			},
		},
		{
			name: "no access token in any shape",
			refresh: func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"responseObject": gin.H{"refreshToken": "r"}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.login(t, "access-1", "refresh-1")

			api := &shopAPI{validAccess: "access-2", refresh: tt.refresh}
			g := newTestGateway(t, f, api)

			resp, err := g.Do(ctx, ordersRequest)
			require.NoError(t, err)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "original failure returned")
			assert.Len(t, api.authHeaders(), 1, "no retry after failed renewal")

			state := f.session.State()
			assert.Equal(t, domain.SessionUnauthenticated, state.Status)
			assert.Equal(t, domain.LogoutExpired, state.Reason)
			assert.Empty(t, f.creds.GetAccess(ctx))
			assert.Empty(t, f.creds.GetRefresh(ctx))
		})
	}
}

func TestGateway_RenewalNetworkFailureExpiresSession(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")

	api := &shopAPI{validAccess: "access-2"}
	srv := newFakeAPI(t, api.routes)
	api.refresh = func(c *gin.Context) {
		// Drop the connection without answering.
		conn, _, err := c.Writer.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}

	g := NewGateway(srv.Client(), GatewayConfig{BaseURL: srv.URL, RefreshPath: refreshPath}, f.creds, f.session, f.bus, nil, f.logger)

	resp, err := g.Do(context.Background(), ordersRequest)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, domain.SessionUnauthenticated, f.session.State().Status)
}

func TestGateway_NoRefreshCredentialLogsOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "access-1", "refresh-1")
	require.NoError(t, f.creds.SetRefresh(ctx, ""))

	api := &shopAPI{validAccess: "access-2"}
	g := newTestGateway(t, f, api)

	resp, err := g.Do(ctx, ordersRequest)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, api.refreshCalls.Load())
	assert.Equal(t, domain.SessionUnauthenticated, f.session.State().Status)
}

func TestGateway_RefreshPathNeverRenews(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")

	api := &shopAPI{refresh: func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "nope"})
	}}
	g := newTestGateway(t, f, api)

	resp, err := g.Do(context.Background(), Request{Method: http.MethodPost, Path: loginPath})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = g.Do(context.Background(), Request{Method: http.MethodPost, Path: refreshPath})
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, api.refreshCalls.Load(), "the refresh call itself, no renewal loop")
	assert.Equal(t, domain.SessionAuthenticated, f.session.State().Status)
}

func TestGateway_ConcurrentUnauthorizedShareOneRenewal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, "access-1", "refresh-1")

	// Every request still carrying access-1 fails until the renewal lands.
	api := &shopAPI{validAccess: "access-2", refreshDelay: 100 * time.Millisecond}
	api.refresh = renewTo("access-2", "refresh-2")
	g := newTestGateway(t, f, api)

	const callers = 8
	var wg sync.WaitGroup
	statuses := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := g.Do(ctx, ordersRequest)
			if err == nil {
				statuses[i] = resp.StatusCode
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, api.refreshCalls.Load(), "renewal is single-flight")
	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "caller %d", i)
	}
}

func TestGateway_DoJSONTaxonomy(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")

	srv := newFakeAPI(t, func(r *gin.Engine) {
		r.GET("/boom", func(c *gin.Context) { c.JSON(http.StatusBadGateway, gin.H{"message": "upstream down"}) })
		r.POST("/invalid", func(c *gin.Context) { c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "phone taken"}) })
		r.GET("/garbage", func(c *gin.Context) { c.String(http.StatusOK, "<html>") })
		r.GET("/items", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"count": 3}})
		})
	})
	g := NewGateway(srv.Client(), GatewayConfig{BaseURL: srv.URL, RefreshPath: refreshPath}, f.creds, f.session, f.bus, nil, f.logger)
	ctx := context.Background()

	err := g.DoJSON(ctx, Request{Method: http.MethodGet, Path: "/boom"}, nil)
	assert.ErrorIs(t, err, domain.ErrTransientFailure)

	err = g.DoJSON(ctx, Request{Method: http.MethodPost, Path: "/invalid", Body: gin.H{"a": 1}}, nil)
	assert.ErrorIs(t, err, domain.ErrValidationFailure)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "phone taken", apiErr.Message)

	var out struct{ Count int }
	err = g.DoJSON(ctx, Request{Method: http.MethodGet, Path: "/garbage"}, &out)
	assert.ErrorIs(t, err, domain.ErrUnknown)

	require.NoError(t, g.DoJSON(ctx, Request{Method: http.MethodGet, Path: "/items"}, &out))
	assert.Equal(t, 3, out.Count)

	srv.Close()
	err = g.DoJSON(ctx, Request{Method: http.MethodGet, Path: "/items"}, &out)
	assert.ErrorIs(t, err, domain.ErrTransientFailure)
}

func TestGateway_DoJSONUnauthorizedAfterFailedRenewal(t *testing.T) {
	f := newFixture(t)
	f.login(t, "access-1", "refresh-1")

	api := &shopAPI{validAccess: "x", refresh: func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	}}
	g := newTestGateway(t, f, api)

	err := g.DoJSON(context.Background(), ordersRequest, nil)
	assert.ErrorIs(t, err, domain.ErrAuthenticationExpired)
	assert.Equal(t, domain.SessionUnauthenticated, f.session.State().Status)
}
