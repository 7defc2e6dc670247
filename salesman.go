/*
Package salesman – object mapping for the Salesforce record API.

A Salesman holds the connection, the logger, the optional describe store and
the registry of models. Models are created from Schemas and resolved lazily
against the remote description of their object.
*/
package salesman

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Options configures a Salesman.
type Options struct {
	Logger  Logger // nil → StdLogger on stderr
	Verbose bool   // also log trace/data with the default logger
	// DescribeStore persists describe payloads between processes.
	DescribeStore DescribeStore
}

// Salesman is the model registry bound to one remote connection.
type Salesman struct {
	log   Logger
	store DescribeStore

	mu     sync.RWMutex
	conn   *Connection
	models map[string]*Model
}

// New creates an unconnected Salesman.
func New(opts Options) *Salesman {
	s := &Salesman{
		store:  opts.DescribeStore,
		models: map[string]*Model{},
	}
	s.log = opts.Logger
	if s.log == nil {
		s.log = NewStdLogger(nil, opts.Verbose)
	}
	s.log.Trace("Loading Salesman", nil)
	return s
}

// Connect installs conn and performs the initial login. A Salesman connects
// once.
func (s *Salesman) Connect(ctx context.Context, conn *Connection) error {
	if conn == nil {
		return NewArgError("missing connection")
	}
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return NewArgError("a connection has already been initialized")
	}
	s.conn = conn
	s.mu.Unlock()

	if _, err := conn.Session(ctx); err != nil {
		s.log.Error("Salesman login failed", map[string]any{"err": err.Error()})
		return err
	}
	s.log.Info("Salesman connected", nil)
	return nil
}

// Connection returns the installed connection, or nil.
func (s *Salesman) Connection() *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Salesman) session(ctx context.Context) (Session, error) {
	conn := s.Connection()
	if conn == nil {
		return nil, NewArgError("salesman is not connected")
	}
	return conn.Session(ctx)
}

// Model registers schema under name and returns its model. Registering a
// name again replaces the previous model.
func (s *Salesman) Model(name string, schema *Schema) (*Model, error) {
	if name == "" {
		return nil, NewArgError("missing model name")
	}
	if schema == nil {
		return nil, NewArgError(fmt.Sprintf("non-schema passed to model: %s", name))
	}
	m := newModel(s, name, schema)
	s.mu.Lock()
	s.models[name] = m
	s.mu.Unlock()
	s.log.Trace(fmt.Sprintf(`Registered model "%s"`, name), map[string]any{"object": schema.ObjectName()})
	return m, nil
}

// GetModel returns a registered model.
func (s *Salesman) GetModel(name string) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[name]
	if !ok {
		return nil, NewArgError(fmt.Sprintf("'%s' is not a valid model", name))
	}
	return m, nil
}

// ListModels returns the registered model names in sorted order.
func (s *Salesman) ListModels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.models))
	for name := range s.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
