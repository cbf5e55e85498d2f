// Package shell maps frontend URLs to views and decides which shared
// dependencies (auth, touch, admin flags, profile) each view is given.
package shell

import (
	"path"
	"strings"
)

type View string

const (
	ViewHome           View = "Home"
	ViewSignIn         View = "SignIn"
	ViewGallery        View = "Gallery"
	ViewRegister       View = "Register"
	ViewProfile        View = "Profile"
	ViewAdminHub       View = "AdminHub"
	ViewBook           View = "Book"
	ViewPrivacyPolicy  View = "PrivacyPolicy"
	ViewBookingPolicy  View = "BookingPolicy"
	ViewVerifyEmail    View = "VerifyEmail"
	ViewForgotPassword View = "ForgotPassword"
	ViewResetPassword  View = "ResetPassword"
	ViewNotFound       View = "NotFound"
)

// Provider names a dependency scope a view can be placed under.
type Provider string

const (
	ProviderAuth       Provider = "auth"
	ProviderTouch      Provider = "touch"
	ProviderAdminFlags Provider = "adminFlags"
	ProviderProfile    Provider = "profile"
)

type Route struct {
	Path      string
	View      View
	Providers []Provider
}

var base = []Provider{ProviderAuth, ProviderTouch}

func withBase(extra ...Provider) []Provider {
	return append(append([]Provider(nil), base...), extra...)
}

// Routes is the frontend route table. Order matters only for listing.
var Routes = []Route{
	{Path: "/", View: ViewHome, Providers: withBase()},
	{Path: "/signin", View: ViewSignIn, Providers: withBase()},
	{Path: "/gallery", View: ViewGallery, Providers: withBase()},
	{Path: "/register", View: ViewRegister, Providers: withBase()},
	{Path: "/profile", View: ViewProfile, Providers: withBase(ProviderProfile)},
	{Path: "/admin-hub", View: ViewAdminHub, Providers: withBase(ProviderAdminFlags)},
	{Path: "/book", View: ViewBook, Providers: withBase(ProviderProfile)},
	{Path: "/privacy-policy", View: ViewPrivacyPolicy, Providers: withBase()},
	{Path: "/booking-policy", View: ViewBookingPolicy, Providers: withBase()},
	{Path: "/verify-email", View: ViewVerifyEmail, Providers: withBase()},
	{Path: "/forgot-password", View: ViewForgotPassword, Providers: withBase()},
	{Path: "/reset-password", View: ViewResetPassword, Providers: withBase()},
}

var notFound = Route{Path: "*", View: ViewNotFound, Providers: withBase()}

var byPath = func() map[string]Route {
	m := make(map[string]Route, len(Routes))
	for _, r := range Routes {
		m[r.Path] = r
	}
	return m
}()

// BasePath is where the frontend is mounted: a sub-path in production, the
// root everywhere else.
func BasePath(production bool) string {
	if production {
		return "/barbershop"
	}
	return "/"
}

// Resolve finds the route for a request path under basePath. Anything that
// is not an exact route, or lies outside basePath, resolves to NotFound.
func Resolve(basePath, p string) Route {
	rel, ok := strip(basePath, p)
	if !ok {
		return notFound
	}
	if r, ok := byPath[rel]; ok {
		return r
	}
	return notFound
}

func strip(basePath, p string) (string, bool) {
	if p == "" {
		p = "/"
	}
	p = path.Clean("/" + p)
	b := path.Clean("/" + basePath)
	if b == "/" {
		return p, true
	}
	if p == b {
		return "/", true
	}
	if !strings.HasPrefix(p, b+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, b), true
}

func (r Route) Has(p Provider) bool {
	for _, x := range r.Providers {
		if x == p {
			return true
		}
	}
	return false
}
