package gc

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Connector dials the remote service and returns a live connection.
// Real implementations live outside this repository and register
// themselves in an init function, database/sql driver style.
type Connector interface {
	Connect(ctx context.Context) (Conn, error)
}

// ConnectorFunc adapts a plain function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Conn, error)

func (f ConnectorFunc) Connect(ctx context.Context) (Conn, error) {
	return f(ctx)
}

var (
	connectorsMu sync.RWMutex
	connectors   = make(map[string]Connector)
)

// Register makes a connector available under the given name. It panics
// if name is empty, c is nil, or the name is already taken — connector
// registration is a program-setup error, not a runtime condition.
func Register(name string, c Connector) {
	connectorsMu.Lock()
	defer connectorsMu.Unlock()

	if name == "" {
		panic("gc: Register with empty connector name")
	}

	if c == nil {
		panic("gc: Register with nil connector")
	}

	if _, dup := connectors[name]; dup {
		panic("gc: Register called twice for connector " + name)
	}

	connectors[name] = c
}

// Open returns the connector registered under name. An empty name
// selects the sole registered connector, if there is exactly one.
func Open(name string) (Connector, error) {
	connectorsMu.RLock()
	defer connectorsMu.RUnlock()

	if name == "" {
		if len(connectors) == 1 {
			for _, c := range connectors {
				return c, nil
			}
		}

		return nil, fmt.Errorf("gc: no connector selected (registered: %v)", connectorNamesLocked())
	}

	c, ok := connectors[name]
	if !ok {
		return nil, fmt.Errorf("gc: unknown connector %q (registered: %v)", name, connectorNamesLocked())
	}

	return c, nil
}

func connectorNamesLocked() []string {
	names := make([]string, 0, len(connectors))
	for name := range connectors {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
