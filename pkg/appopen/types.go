package appopen

import "time"

// Edition is the deployment flavor an app is opened under. The same tenant
// may hold separate open records per edition.
type Edition string

const (
	EditionCloud   Edition = "cloud"
	EditionPrivate Edition = "private"
)

// Valid reports whether the edition is one of the closed set.
func (e Edition) Valid() bool {
	return e == EditionCloud || e == EditionPrivate
}

// Record is one tenant/app/edition open state row.
type Record struct {
	ID       int64     `json:"id"`
	TenantID string    `json:"tenant_id"`
	AppID    string    `json:"app_id"`
	Edition  Edition   `json:"edition"`
	OpenedAt time.Time `json:"opened_at"`
}
