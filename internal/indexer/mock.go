package indexer

import (
	"context"
	"sync"
)

// Call records one method invocation against a MockClient, for test
// assertions on call order and arguments.
type Call struct {
	Method string
	Module string
	Paths  []string
	From   []string
	To     []string
}

// MockClient is an in-memory Client used by processor and status tests.
// Every method succeeds unless FailNext is armed for that method name.
type MockClient struct {
	mu       sync.Mutex
	Calls    []Call
	events   chan Event
	FailNext map[string]bool
}

// NewMockClient returns a MockClient ready for use.
func NewMockClient() *MockClient {
	return &MockClient{
		events:   make(chan Event, 64),
		FailNext: make(map[string]bool),
	}
}

func (m *MockClient) record(c Call) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, c)
	if m.FailNext[c.Method] {
		m.FailNext[c.Method] = false
		return errMockFailure{method: c.Method}
	}
	return nil
}

type errMockFailure struct{ method string }

func (e errMockFailure) Error() string { return "mock indexer: " + e.method + " failed" }

func (m *MockClient) Pause(ctx context.Context) error    { return m.record(Call{Method: "Pause"}) }
func (m *MockClient) Continue(ctx context.Context) error { return m.record(Call{Method: "Continue"}) }

func (m *MockClient) FilesCheck(ctx context.Context, module string, paths []string) error {
	return m.record(Call{Method: "FilesCheck", Module: module, Paths: paths})
}

func (m *MockClient) FilesUpdate(ctx context.Context, module string, paths []string) error {
	return m.record(Call{Method: "FilesUpdate", Module: module, Paths: paths})
}

func (m *MockClient) FilesDelete(ctx context.Context, module string, paths []string) error {
	return m.record(Call{Method: "FilesDelete", Module: module, Paths: paths})
}

func (m *MockClient) FileMove(ctx context.Context, module, from, to string) error {
	return m.record(Call{Method: "FileMove", Module: module, From: []string{from}, To: []string{to}})
}

func (m *MockClient) FilesMove(ctx context.Context, module string, from, to []string) error {
	return m.record(Call{Method: "FilesMove", Module: module, From: from, To: to})
}

func (m *MockClient) VolumeUpdateState(ctx context.Context, udi, mountPoint string, online bool) error {
	return m.record(Call{Method: "VolumeUpdateState", Module: udi, Paths: []string{mountPoint}})
}

func (m *MockClient) VolumeDisableAll(ctx context.Context) error {
	return m.record(Call{Method: "VolumeDisableAll"})
}

func (m *MockClient) Events() <-chan Event { return m.events }

// Push injects an inbound event, as the real indexer would over its
// notify connection.
func (m *MockClient) Push(ev Event) { m.events <- ev }

func (m *MockClient) Close() error {
	close(m.events)
	return nil
}
