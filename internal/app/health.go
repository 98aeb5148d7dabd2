package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

type HealthChecker struct {
	infra  Infrastructure
	client *Client
}

func NewHealthChecker(infra Infrastructure, client *Client) *HealthChecker {
	return &HealthChecker{
		infra:  infra,
		client: client,
	}
}

func (h *HealthChecker) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		if pg := h.infra.Postgres(); pg != nil {
			errs <- pg.Ping(ctx)
			return
		}
		errs <- nil
	}()

	go func() {
		if redis := h.infra.Redis(); redis != nil {
			errs <- redis.Ping(ctx)
			return
		}
		errs <- nil
	}()

	return errors.Join(<-errs, <-errs)
}

func (h *HealthChecker) Handler(c *gin.Context) {
	session := h.client.Session.State().Status.String()
	connection := h.client.Channel.Status().State.String()

	if err := h.check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "fail",
			"error":      err.Error(),
			"session":    session,
			"connection": connection,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "pass",
		"session":    session,
		"connection": connection,
	})
}
