package shell

import "barber-booking-api/internal/auth"

type AuthState struct {
	SignedIn bool   `json:"signedIn"`
	UserID   string `json:"userId,omitempty"`
	Name     string `json:"name,omitempty"`
	Admin    bool   `json:"admin"`
}

type AdminFlags struct {
	ManageBookings bool `json:"manageBookings"`
	ViewActivity   bool `json:"viewActivity"`
}

type Profile struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Deps is everything a view may be handed. A nil field means the view is
// not inside that provider's scope.
type Deps struct {
	Auth       *AuthState  `json:"auth,omitempty"`
	Touch      *bool       `json:"touch,omitempty"`
	AdminFlags *AdminFlags `json:"adminFlags,omitempty"`
	Profile    *Profile    `json:"profile,omitempty"`
}

// NewDeps builds the full dependency set for a caller; id is nil when
// nobody is signed in.
func NewDeps(id *auth.Identity, touch TouchProvider) Deps {
	t := touch.IsTouch()
	d := Deps{Auth: &AuthState{}, Touch: &t}
	if id == nil {
		return d
	}
	d.Auth = &AuthState{SignedIn: true, UserID: id.UserID, Name: id.Name, Admin: id.Admin}
	d.Profile = &Profile{UserID: id.UserID, Name: id.Name}
	if id.Admin {
		d.AdminFlags = &AdminFlags{ManageBookings: true, ViewActivity: true}
	}
	return d
}

// Scope keeps only the dependencies the route's providers expose.
func (r Route) Scope(all Deps) Deps {
	var d Deps
	if r.Has(ProviderAuth) {
		d.Auth = all.Auth
	}
	if r.Has(ProviderTouch) {
		d.Touch = all.Touch
	}
	if r.Has(ProviderAdminFlags) {
		d.AdminFlags = all.AdminFlags
	}
	if r.Has(ProviderProfile) {
		d.Profile = all.Profile
	}
	return d
}
