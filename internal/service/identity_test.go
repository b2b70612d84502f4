package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKeepsExisting(t *testing.T) {
	svc := NewIdentityService(30*24*time.Hour, false)

	uid, issued := svc.Resolve("existing-uid")
	assert.Equal(t, "existing-uid", uid)
	assert.False(t, issued)
}

func TestResolveMintsUUIDv4(t *testing.T) {
	svc := NewIdentityService(30*24*time.Hour, false)

	uid, issued := svc.Resolve("")
	require.True(t, issued)

	parsed, err := uuid.Parse(uid)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())

	other, _ := svc.Resolve("")
	assert.NotEqual(t, uid, other)
}

func TestFromRequest(t *testing.T) {
	svc := NewIdentityService(time.Hour, false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, svc.FromRequest(r))

	r.AddCookie(&http.Cookie{Name: "uid", Value: "abc"})
	assert.Equal(t, "abc", svc.FromRequest(r))
}

func TestCookieAttributes(t *testing.T) {
	c := NewIdentityService(30*24*time.Hour, true).Cookie("abc")

	assert.Equal(t, "uid", c.Name)
	assert.Equal(t, "abc", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, 30*24*60*60, c.MaxAge)
	assert.False(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}
