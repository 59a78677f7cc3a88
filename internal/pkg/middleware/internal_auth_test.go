package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func internalTestApp() *fiber.App {
	app := fiber.New()
	app.Post("/internal/ping", InternalAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	return app
}

func TestInternalAuthDisabledWithoutSecret(t *testing.T) {
	t.Setenv("INTERNAL_API_SECRET", "")
	app := internalTestApp()

	req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	req.Header.Set("X-Internal-Secret", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestInternalAuthAcceptsSecret(t *testing.T) {
	t.Setenv("INTERNAL_API_SECRET", "hunter2")
	app := internalTestApp()

	req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	req.Header.Set("X-Internal-Secret", "hunter2")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInternalAuthRejectsWrongSecret(t *testing.T) {
	t.Setenv("INTERNAL_API_SECRET", "hunter2")
	app := internalTestApp()

	req := httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	req.Header.Set("X-Internal-Secret", "hunter3")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPost, "/internal/ping", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
