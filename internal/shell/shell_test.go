package shell_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"barber-booking-api/internal/auth"
	"barber-booking-api/internal/shell"
)

func TestRouteTable(t *testing.T) {
	want := map[string]shell.View{
		"/":                shell.ViewHome,
		"/signin":          shell.ViewSignIn,
		"/gallery":         shell.ViewGallery,
		"/register":        shell.ViewRegister,
		"/profile":         shell.ViewProfile,
		"/admin-hub":       shell.ViewAdminHub,
		"/book":            shell.ViewBook,
		"/privacy-policy":  shell.ViewPrivacyPolicy,
		"/booking-policy":  shell.ViewBookingPolicy,
		"/verify-email":    shell.ViewVerifyEmail,
		"/forgot-password": shell.ViewForgotPassword,
		"/reset-password":  shell.ViewResetPassword,
	}
	require.Len(t, shell.Routes, len(want))
	for p, v := range want {
		assert.Equal(t, v, shell.Resolve("/", p).View, p)
		assert.Equal(t, v, shell.Resolve("/barbershop", "/barbershop"+p).View, p)
	}
}

func TestResolveFallback(t *testing.T) {
	tests := []struct{ base, path string }{
		{"/", "/nope"},
		{"/", "/book/extra"},
		{"/", "/SIGNIN"},
		{"/barbershop", "/signin"},
		{"/barbershop", "/barbershopx/signin"},
		{"/barbershop", "/barbershop/unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, shell.ViewNotFound, shell.Resolve(tt.base, tt.path).View, tt.base+" "+tt.path)
	}
}

func TestResolveNormalises(t *testing.T) {
	assert.Equal(t, shell.ViewSignIn, shell.Resolve("/", "/signin/").View)
	assert.Equal(t, shell.ViewHome, shell.Resolve("/barbershop", "/barbershop").View)
	assert.Equal(t, shell.ViewHome, shell.Resolve("/barbershop/", "/barbershop/").View)
	assert.Equal(t, shell.ViewHome, shell.Resolve("/", "").View)
}

func TestBasePath(t *testing.T) {
	assert.Equal(t, "/barbershop", shell.BasePath(true))
	assert.Equal(t, "/", shell.BasePath(false))
}

func TestDetectTouch(t *testing.T) {
	tests := []struct {
		c    shell.Capabilities
		want bool
	}{
		{shell.Capabilities{}, false},
		{shell.Capabilities{OnTouchStart: true}, true},
		{shell.Capabilities{MaxTouchPoints: 5}, true},
		{shell.Capabilities{MsMaxTouchPoints: 2}, true},
		{shell.Capabilities{MaxTouchPoints: 0, MsMaxTouchPoints: 0}, false},
		{shell.Capabilities{OnTouchStart: true, MaxTouchPoints: 10, MsMaxTouchPoints: 10}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shell.DetectTouch(tt.c), "%+v", tt.c)
		assert.Equal(t, tt.want, shell.NewTouchProvider(tt.c).IsTouch(), "%+v", tt.c)
	}
}

func TestScopes(t *testing.T) {
	admin := auth.Identity{UserID: "a1", Name: "Boss", Admin: true}
	all := shell.NewDeps(&admin, shell.NewTouchProvider(shell.Capabilities{OnTouchStart: true}))

	hub := shell.Resolve("/", "/admin-hub").Scope(all)
	require.NotNil(t, hub.AdminFlags)
	assert.True(t, hub.AdminFlags.ViewActivity)
	assert.Nil(t, hub.Profile)
	require.NotNil(t, hub.Touch)
	assert.True(t, *hub.Touch)

	prof := shell.Resolve("/", "/profile").Scope(all)
	require.NotNil(t, prof.Profile)
	assert.Equal(t, "a1", prof.Profile.UserID)
	assert.Nil(t, prof.AdminFlags)

	gallery := shell.Resolve("/", "/gallery").Scope(all)
	require.NotNil(t, gallery.Auth)
	assert.True(t, gallery.Auth.SignedIn)
	assert.Nil(t, gallery.Profile)
	assert.Nil(t, gallery.AdminFlags)
}

func TestAnonymousDeps(t *testing.T) {
	d := shell.NewDeps(nil, shell.NewTouchProvider(shell.Capabilities{}))
	require.NotNil(t, d.Auth)
	assert.False(t, d.Auth.SignedIn)
	assert.Nil(t, d.Profile)
	assert.Nil(t, d.AdminFlags)
	assert.False(t, *d.Touch)
}

var bootRe = regexp.MustCompile(`(?s)<script id="bootstrap" type="application/json">(.*?)</script>`)

type boot struct {
	View     string     `json:"view"`
	BasePath string     `json:"basePath"`
	Deps     shell.Deps `json:"deps"`
}

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) (int, boot, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, _ := io.ReadAll(rec.Body)
	var b boot
	if m := bootRe.FindSubmatch(body); m != nil {
		require.NoError(t, json.Unmarshal(m[1], &b))
	}
	return rec.Code, b, string(body)
}

func TestHandlerServesViews(t *testing.T) {
	h := shell.NewHandler(shell.Options{BasePath: "/barbershop", Secret: "s"}, zap.NewNop())

	code, b, body := get(t, h, "/barbershop/book", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Book", b.View)
	assert.Equal(t, "/barbershop", b.BasePath)
	assert.Contains(t, body, `<base href="/barbershop/">`)
	require.NotNil(t, b.Deps.Auth)
	assert.False(t, b.Deps.Auth.SignedIn)

	code, b, _ = get(t, h, "/barbershop/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotFound", b.View)
}

func TestHandlerSignedInAdmin(t *testing.T) {
	tok, err := auth.MakeToken(auth.Identity{UserID: "a1", Name: "Boss", Admin: true}, "s")
	require.NoError(t, err)
	h := shell.NewHandler(shell.Options{Secret: "s"}, zap.NewNop())

	code, b, _ := get(t, h, "/admin-hub", map[string]string{
		"Authorization":    "Bearer " + tok,
		"Sec-CH-UA-Mobile": "?1",
	})
	assert.Equal(t, http.StatusOK, code)
	require.NotNil(t, b.Deps.AdminFlags)
	assert.True(t, b.Deps.AdminFlags.ManageBookings)
	require.NotNil(t, b.Deps.Touch)
	assert.True(t, *b.Deps.Touch)
	assert.True(t, b.Deps.Auth.Admin)
}

func TestHandlerBadTokenRendersSignedOut(t *testing.T) {
	h := shell.NewHandler(shell.Options{Secret: "s"}, zap.NewNop())
	_, b, _ := get(t, h, "/profile", map[string]string{"Cookie": shell.TokenCookie + "=garbage"})
	require.NotNil(t, b.Deps.Auth)
	assert.False(t, b.Deps.Auth.SignedIn)
	assert.Nil(t, b.Deps.Profile)
}

func TestHandlerAssets(t *testing.T) {
	assets := fstest.MapFS{"app.js": {Data: []byte("console.log('hi')")}}
	h := shell.NewHandler(shell.Options{Assets: assets}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/assets/app.js", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log('hi')", rec.Body.String())
}

func TestHandlerRejectsPost(t *testing.T) {
	h := shell.NewHandler(shell.Options{}, zap.NewNop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
