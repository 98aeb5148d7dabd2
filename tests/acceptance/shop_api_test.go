package acceptance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prperemyshlev/shop-session/pkg/socket"
)

const (
	testPhone    = "+998901234567"
	testPassword = "secret-pass"
)

// shopAPI fakes the remote shop API and its notification socket. It accepts
// exactly one access token at a time and rotates credentials on refresh.
type shopAPI struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	rotation      int
	access        string
	refresh       string
	refreshFails  bool
	refreshCalls  int
	revoked       []string
	handshakes    []string
	notifications []gin.H
	patched       []string

	sockets chan *remoteSocket
}

// remoteSocket is the server side of one real-time connection.
type remoteSocket struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  chan struct{}
}

func (s *remoteSocket) send(ev socket.Event) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(ev)
}

func (s *remoteSocket) push(record gin.H) error {
	payload, err := json.Marshal(gin.H{"data": record})
	if err != nil {
		return err
	}
	return s.send(socket.Event{Name: socket.EventNotification, Payload: payload})
}

func newShopAPI() *shopAPI {
	api := &shopAPI{sockets: make(chan *remoteSocket, 8)}

	router := gin.New()
	v1 := router.Group("/api")
	{
		v1.POST("/auth/login", api.login)
		v1.POST("/auth/refresh", api.renew)
		v1.POST("/auth/logout", api.logout)

		protected := v1.Group("", api.authorize)
		protected.GET("/notifications", api.list)
		protected.PATCH("/notifications/:id", api.markAllRead)
		protected.PATCH("/notifications/:id/read", api.markRead)

		v1.GET("/ws/notifications", api.socket)
	}

	api.srv = httptest.NewServer(router)
	return api
}

func (a *shopAPI) BaseURL() string {
	return a.srv.URL + "/api"
}

func (a *shopAPI) Close() {
	a.srv.Close()
}

func (a *shopAPI) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rotation = 0
	a.access = ""
	a.refresh = ""
	a.refreshFails = false
	a.refreshCalls = 0
	a.revoked = nil
	a.handshakes = nil
	a.notifications = nil
	a.patched = nil

	for {
		select {
		case <-a.sockets:
		default:
			return
		}
	}
}

// rotateLocked issues a new credential pair and invalidates the previous one.
func (a *shopAPI) rotateLocked() (string, string) {
	a.rotation++
	a.access = fmt.Sprintf("access-%d", a.rotation)
	a.refresh = fmt.Sprintf("refresh-%d", a.rotation)
	return a.access, a.refresh
}

// revokeAccess makes the current access token stale, as an expiry would.
func (a *shopAPI) revokeAccess() {
	a.mu.Lock()
	a.access = "revoked"
	a.mu.Unlock()
}

func (a *shopAPI) failRefresh() {
	a.mu.Lock()
	a.refreshFails = true
	a.mu.Unlock()
}

func (a *shopAPI) seed(records ...gin.H) {
	a.mu.Lock()
	a.notifications = append(a.notifications, records...)
	a.mu.Unlock()
}

func (a *shopAPI) stats() (refreshCalls int, revoked, handshakes, patched []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshCalls,
		append([]string(nil), a.revoked...),
		append([]string(nil), a.handshakes...),
		append([]string(nil), a.patched...)
}

func (a *shopAPI) login(c *gin.Context) {
	var body struct {
		PhoneNumber string `json:"phoneNumber"`
		Password    string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	if body.PhoneNumber != testPhone || body.Password != testPassword {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Invalid phone number or password"})
		return
	}

	a.mu.Lock()
	access, refresh := a.rotateLocked()
	a.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"accessToken":  access,
			"refreshToken": refresh,
			"user": gin.H{
				"id":          "user-1",
				"shopId":      "shop-1",
				"shopName":    "Corner Shop",
				"phoneNumber": testPhone,
				"name":        "Aziz",
				"role":        "owner",
			},
		},
	})
}

func (a *shopAPI) renew(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&body)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.refreshCalls++
	if a.refreshFails || body.RefreshToken == "" || body.RefreshToken != a.refresh {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "refresh token expired"})
		return
	}

	access, refresh := a.rotateLocked()
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "refreshToken": refresh})
}

func (a *shopAPI) logout(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.ShouldBindJSON(&body)

	a.mu.Lock()
	a.revoked = append(a.revoked, body.RefreshToken)
	a.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (a *shopAPI) authorize(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	a.mu.Lock()
	valid := token != "" && token == a.access
	a.mu.Unlock()

	if !valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "jwt expired"})
		return
	}
	c.Next()
}

func (a *shopAPI) list(c *gin.Context) {
	a.mu.Lock()
	records := append([]gin.H(nil), a.notifications...)
	a.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "data": records})
}

func (a *shopAPI) markRead(c *gin.Context) {
	a.mu.Lock()
	a.patched = append(a.patched, c.Param("id"))
	a.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *shopAPI) markAllRead(c *gin.Context) {
	if c.Param("id") != "read-all" {
		c.JSON(http.StatusNotFound, gin.H{"message": "not found"})
		return
	}
	a.markRead(c)
}

func (a *shopAPI) socket(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")

	a.mu.Lock()
	a.handshakes = append(a.handshakes, token)
	valid := token != "" && (token == a.access || token == a.refresh)
	a.mu.Unlock()

	if !valid {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	ws, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	remote := &remoteSocket{ws: ws, closed: make(chan struct{})}
	if err := remote.send(socket.Event{Name: socket.EventConnected}); err != nil {
		_ = ws.Close()
		return
	}
	a.sockets <- remote

	defer close(remote.closed)
	defer ws.Close()

	for {
		var ev socket.Event
		if err := ws.ReadJSON(&ev); err != nil {
			return
		}
		if ev.Name == socket.EventPing {
			_ = remote.send(socket.Event{Name: socket.EventPong})
		}
	}
}
