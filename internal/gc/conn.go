// Package gc defines the boundary to the game-coordinator protocol
// client: the raw item record, the asynchronous event stream, and the
// connection interface the session and transfer layers are written
// against. The wire protocol itself is implemented by an external
// connector registered via Register; tests use the scripted fake in
// gc/gctest.
package gc

import "context"

// Conn is a live protocol connection. Implementations push all
// asynchronous results onto the Events channel; the methods themselves
// only issue requests.
//
// A Conn has a single owner at a time. Methods are not safe for
// concurrent use except LogOff and Close.
type Conn interface {
	// StartCredentials begins a username/password login session. Success
	// surfaces later as an Authenticated event; a second-factor prompt
	// surfaces as GuardRequired.
	StartCredentials(ctx context.Context, accountName, password string) error

	// SubmitGuardCode completes a pending second-factor challenge.
	SubmitGuardCode(ctx context.Context, code string) error

	// LogOn logs on with a refresh token. Success surfaces as LoggedOn.
	LogOn(refreshToken string) error

	// LogOff tears the session down. The connection emits Disconnected
	// once teardown is complete, even if it was not logged on.
	LogOff()

	// RequestPersona asks the service for persona data for the given
	// account. The response arrives as a PersonaInfo event.
	RequestPersona(accountID string)

	// Inventory returns a snapshot of the live item collection. Empty
	// until GCReady has fired.
	Inventory() []Item

	// CasketContents queries the items stored inside a storage unit.
	CasketContents(ctx context.Context, casketID string) ([]Item, error)

	// AddToCasket moves an inventory item into a storage unit.
	// Confirmation arrives as ItemRemoved or CustomizationNotice.
	AddToCasket(casketID, itemID string) error

	// RemoveFromCasket moves an item out of a storage unit back into the
	// inventory. Confirmation arrives as ItemAcquired or
	// CustomizationNotice.
	RemoveFromCasket(casketID, itemID string) error

	// NameCasket renames a storage unit. Confirmation arrives as
	// ItemChanged.
	NameCasket(casketID, name string) error

	// Events returns the connection's event stream. The channel closes
	// when the connection is closed.
	Events() <-chan Event

	// Close releases the connection. Safe to call more than once.
	Close() error
}
