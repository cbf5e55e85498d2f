package shell

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"barber-booking-api/internal/auth"
)

//go:embed templates/index.html.tmpl
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "templates/index.html.tmpl"))

// TokenCookie carries the access token for full page loads.
const TokenCookie = "access_token"

type Options struct {
	BasePath string
	Secret   string
	// Assets, when set, is served under <base>/assets/.
	Assets fs.FS
}

// Handler serves the single-page app's entry document for every route and
// the 404 view for everything else.
type Handler struct {
	opts   Options
	assets http.Handler
	log    *zap.Logger
}

func NewHandler(opts Options, log *zap.Logger) *Handler {
	if opts.BasePath == "" {
		opts.BasePath = "/"
	}
	h := &Handler{opts: opts, log: log}
	if opts.Assets != nil {
		h.assets = http.StripPrefix(h.baseHref()+"assets/", http.FileServer(http.FS(opts.Assets)))
	}
	return h
}

type bootstrap struct {
	View     View   `json:"view"`
	BasePath string `json:"basePath"`
	Deps     Deps   `json:"deps"`
}

type page struct {
	BaseHref  string
	Title     string
	View      View
	Bootstrap template.JS
}

func (h *Handler) baseHref() string {
	b := strings.TrimSuffix(h.opts.BasePath, "/")
	return b + "/"
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.assets != nil && strings.HasPrefix(r.URL.Path, h.baseHref()+"assets/") {
		h.assets.ServeHTTP(w, r)
		return
	}

	route := Resolve(h.opts.BasePath, r.URL.Path)
	deps := NewDeps(h.identity(r), NewTouchProvider(CapabilitiesFromRequest(r)))

	boot, err := json.Marshal(bootstrap{View: route.View, BasePath: h.opts.BasePath, Deps: route.Scope(deps)})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	err = indexTmpl.Execute(&buf, page{
		BaseHref:  h.baseHref(),
		Title:     title(route.View),
		View:      route.View,
		Bootstrap: template.JS(boot),
	})
	if err != nil {
		h.log.Error("render shell", zap.String("view", string(route.View)), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	code := http.StatusOK
	if route.View == ViewNotFound {
		code = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)
	w.Write(buf.Bytes())
}

// identity reads the access token from the Authorization header or cookie.
// A missing or bad token renders the page signed out.
func (h *Handler) identity(r *http.Request) *auth.Identity {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		if c, err := r.Cookie(TokenCookie); err == nil {
			raw = c.Value
		}
	}
	if raw == "" {
		return nil
	}
	claims, err := auth.ParseToken(raw, h.opts.Secret)
	if err != nil {
		return nil
	}
	id := claims.Identity()
	return &id
}

func title(v View) string {
	if v == ViewHome {
		return "Barber Shop"
	}
	return string(v) + " | Barber Shop"
}
