// Package notify defines the notifications the core pushes toward the UI
// boundary and the hub that fans them out to renderers. The JSON shape of
// each notification is part of the external contract.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/caskmate/caskmate/internal/accountstore"
	"github.com/caskmate/caskmate/internal/inventory"
)

// Event is one notification. Kind is the stable wire identifier used in
// the envelope's type field.
type Event interface {
	Kind() string
}

// Publisher is the outbound side of the notification boundary. The
// session controller and transfer orchestrator only ever publish; they
// never see subscribers.
type Publisher interface {
	Publish(Event)
}

// AuthState carries a session state transition.
type AuthState struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// GuardRequired asks the UI for a second-factor code.
type GuardRequired struct {
	Type string `json:"type"` // "email" or "mobile"
}

// UserInfo carries the active account's persona data.
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// ErrorNotice surfaces a protocol or operation error. Code is zero when
// no numeric result was attached.
type ErrorNotice struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// SavedAccountsUpdated carries the full saved-account list after any
// mutation.
type SavedAccountsUpdated struct {
	Accounts []accountstore.Account `json:"accounts"`
}

// InventoryUpdated carries a fresh inventory snapshot.
type InventoryUpdated struct {
	Items []inventory.ResolvedItem `json:"items"`
}

// StorageUnitsUpdated carries a fresh storage-unit list.
type StorageUnitsUpdated struct {
	Units []inventory.StorageUnit `json:"units"`
}

// OperationProgress reports one dispatched transfer step. Current is
// 1-based.
type OperationProgress struct {
	OperationID string `json:"operation_id"`
	Current     int    `json:"current"`
	Total       int    `json:"total"`
	ItemID      string `json:"item_id"`
}

// OperationComplete reports the outcome of a transfer operation.
type OperationComplete struct {
	OperationID string `json:"operation_id"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

func (AuthState) Kind() string            { return "auth-state" }
func (GuardRequired) Kind() string        { return "guard-required" }
func (UserInfo) Kind() string             { return "user-info" }
func (ErrorNotice) Kind() string          { return "error" }
func (SavedAccountsUpdated) Kind() string { return "saved-accounts-updated" }
func (InventoryUpdated) Kind() string     { return "inventory-updated" }
func (StorageUnitsUpdated) Kind() string  { return "storage-units-updated" }
func (OperationProgress) Kind() string    { return "operation-progress" }
func (OperationComplete) Kind() string    { return "operation-complete" }

// envelope is the wire framing for serialized notifications.
type envelope struct {
	Type string `json:"type"`
	Data Event  `json:"data"`
}

// Marshal serializes an event into its {type, data} wire envelope.
func Marshal(e Event) ([]byte, error) {
	data, err := json.Marshal(envelope{Type: e.Kind(), Data: e})
	if err != nil {
		return nil, fmt.Errorf("notify: encoding %s event: %w", e.Kind(), err)
	}

	return data, nil
}
