/*
Package tests – shared test infrastructure.

fakeOrg is an in-memory remote org: it serves canned describes, records every
write and answers finds with rows queued by the test.
*/
package tests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	sm "github.com/cloudxsgmbh/salesman-go"
)

// ─── fake org ────────────────────────────────────────────────────────────────

type fakeOrg struct {
	mu      sync.Mutex
	objects map[string]*fakeObject
	// gate, when set, holds every describe until it is closed.
	gate chan struct{}
}

type fakeObject struct {
	org  *fakeOrg
	name string

	describe    *sm.RawDescribe
	describeErr error
	describes   int
	clears      int

	nextID    int
	created   []sm.Record
	updated   []sm.Record
	destroyed []string
	saveFail  *sm.SaveResult

	queries []*sm.RemoteQuery
	rows    []sm.Record
}

func newFakeOrg() *fakeOrg {
	org := &fakeOrg{objects: map[string]*fakeObject{}}
	org.add(leadDescribe())
	org.add(userDescribe())
	org.add(attachmentDescribe())
	org.add(caseDescribe())
	return org
}

func (o *fakeOrg) add(raw *sm.RawDescribe) {
	o.objects[raw.Name] = &fakeObject{org: o, name: raw.Name, describe: raw}
}

func (o *fakeOrg) object(name string) *fakeObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	obj, ok := o.objects[name]
	if !ok {
		obj = &fakeObject{org: o, name: name}
		o.objects[name] = obj
	}
	return obj
}

func (o *fakeOrg) SObject(name string) sm.SObject { return o.object(name) }

func (o *fakeOrg) setGate(gate chan struct{}) {
	o.mu.Lock()
	o.gate = gate
	o.mu.Unlock()
}

func (o *fakeOrg) describeCount(name string) int {
	obj := o.object(name)
	o.mu.Lock()
	defer o.mu.Unlock()
	return obj.describes
}

func (f *fakeObject) Describe(ctx context.Context) (*sm.RawDescribe, error) {
	f.org.mu.Lock()
	f.describes++
	gate := f.org.gate
	raw, err := f.describe, f.describeErr
	f.org.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("NOT_FOUND: sObject type '%s' is not supported", f.name)
	}
	return raw, nil
}

func (f *fakeObject) ClearDescribeCache() {
	f.org.mu.Lock()
	f.clears++
	f.org.mu.Unlock()
}

func (f *fakeObject) Create(_ context.Context, rec sm.Record) (*sm.SaveResult, error) {
	f.org.mu.Lock()
	defer f.org.mu.Unlock()
	if f.saveFail != nil {
		return f.saveFail, nil
	}
	f.nextID++
	f.created = append(f.created, rec)
	return &sm.SaveResult{Success: true, ID: fmt.Sprintf("%s-%d", f.name, f.nextID)}, nil
}

func (f *fakeObject) Update(_ context.Context, rec sm.Record) (*sm.SaveResult, error) {
	f.org.mu.Lock()
	defer f.org.mu.Unlock()
	if f.saveFail != nil {
		return f.saveFail, nil
	}
	f.updated = append(f.updated, rec)
	return &sm.SaveResult{Success: true, ID: rec["Id"].(string)}, nil
}

func (f *fakeObject) Destroy(_ context.Context, id string) (*sm.SaveResult, error) {
	f.org.mu.Lock()
	defer f.org.mu.Unlock()
	if id == "gone" {
		return nil, errors.New("ENTITY_IS_DELETED: entity is deleted")
	}
	f.destroyed = append(f.destroyed, id)
	return &sm.SaveResult{Success: true, ID: id}, nil
}

func (f *fakeObject) Find(_ context.Context, q *sm.RemoteQuery) ([]sm.Record, error) {
	f.org.mu.Lock()
	defer f.org.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.rows, nil
}

func (f *fakeObject) lastQuery(t *testing.T) *sm.RemoteQuery {
	t.Helper()
	f.org.mu.Lock()
	defer f.org.mu.Unlock()
	if len(f.queries) == 0 {
		t.Fatalf("no query sent to %s", f.name)
	}
	return f.queries[len(f.queries)-1]
}

// ─── describes ───────────────────────────────────────────────────────────────

func field(name string, creatable, updatable bool) sm.RawField {
	return sm.RawField{Name: name, Label: name, Createable: creatable, Updateable: updatable, Nillable: true, Type: "string"}
}

func leadDescribe() *sm.RawDescribe {
	fax := field("Fax", true, true)
	fax.DeprecatedAndHidden = true
	owner := field("OwnerId", true, true)
	owner.RelationshipName = "Owner"
	owner.ReferenceTo = []string{"User", "Group"}
	owner.Type = "reference"
	id := field("Id", false, false)
	id.Nillable = false
	return &sm.RawDescribe{
		Name: "Lead", Createable: true, Updateable: true, Deletable: true,
		Label: "Lead", LabelPlural: "Leads", KeyPrefix: "00Q",
		ChildRelationships: []sm.RawChildRelationship{
			{ChildSObject: "Attachment", Field: "ParentId", RelationshipName: "Attachments"},
			{ChildSObject: "Case", Field: "LeadId", RelationshipName: "Cases", DeprecatedAndHidden: true},
		},
		Fields: []sm.RawField{
			id,
			field("FirstName", true, true),
			field("LastName", true, true),
			field("Phone", true, true),
			fax,
			owner,
			field("CreatedDate", false, false),
		},
	}
}

func userDescribe() *sm.RawDescribe {
	return &sm.RawDescribe{
		Name: "User", Label: "User", Updateable: true,
		Fields: []sm.RawField{field("Id", false, false), field("Name", false, true), field("Email", false, true)},
	}
}

func attachmentDescribe() *sm.RawDescribe {
	parent := field("ParentId", true, false)
	parent.RelationshipName = "Parent"
	parent.ReferenceTo = []string{"Lead"}
	return &sm.RawDescribe{
		Name: "Attachment", Label: "Attachment", Createable: true, Deletable: true,
		Fields: []sm.RawField{field("Id", false, false), field("Name", true, true), parent},
	}
}

func caseDescribe() *sm.RawDescribe {
	return &sm.RawDescribe{
		Name: "Case", Label: "Case", Createable: true,
		Fields: []sm.RawField{field("Id", false, false), field("Subject", true, true)},
	}
}

// ─── schemas ─────────────────────────────────────────────────────────────────

func leadSchema() *sm.Schema {
	return sm.MustSchema("Lead", map[string]any{
		"id": "Id",
		"contact": map[string]any{
			"firstName": "FirstName",
			"lastName":  "LastName",
			"phone":     "Phone",
		},
		"fax":         "Fax",
		"bogus":       "Bogus__c",
		"created":     "CreatedDate",
		"assignee":    "Owner.Name",
		"owner":       map[string]any{"ref": "User"},
		"attachments": map[string]any{"ref": "Attachment", "collection": true},
	})
}

func userSchema() *sm.Schema {
	return sm.MustSchema("User", map[string]any{"id": "Id", "name": "Name", "email": "Email"})
}

func attachmentSchema() *sm.Schema {
	return sm.MustSchema("Attachment", map[string]any{"id": "Id", "name": "Name"})
}

// ─── fixture ─────────────────────────────────────────────────────────────────

type logEntry struct {
	level, msg string
	ctx        map[string]any
}

type fixture struct {
	org *fakeOrg
	sm  *sm.Salesman

	mu   sync.Mutex
	logs []logEntry
}

func (f *fixture) logged(level, substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.logs {
		if e.level == level && strings.Contains(e.msg, substr) {
			return true
		}
	}
	return false
}

func newFixture(t *testing.T, opts ...func(*sm.Options)) *fixture {
	t.Helper()
	f := &fixture{org: newFakeOrg()}
	o := sm.Options{Logger: sm.FuncLogger{Fn: func(level, msg string, ctx map[string]any) {
		f.mu.Lock()
		f.logs = append(f.logs, logEntry{level, msg, ctx})
		f.mu.Unlock()
	}}}
	for _, fn := range opts {
		fn(&o)
	}
	f.sm = sm.New(o)
	if err := f.sm.Connect(bg(), sm.StaticConnection(f.org)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	mustModel(t, f.sm, "Lead", leadSchema())
	mustModel(t, f.sm, "User", userSchema())
	mustModel(t, f.sm, "Attachment", attachmentSchema())
	return f
}

func mustModel(t *testing.T, s *sm.Salesman, name string, schema *sm.Schema) *sm.Model {
	t.Helper()
	m, err := s.Model(name, schema)
	if err != nil {
		t.Fatalf("Model %q: %v", name, err)
	}
	return m
}

func (f *fixture) model(t *testing.T, name string) *sm.Model {
	t.Helper()
	m, err := f.sm.GetModel(name)
	if err != nil {
		t.Fatalf("GetModel %q: %v", name, err)
	}
	return m
}

// memStore is an in-memory DescribeStore.
type memStore struct {
	mu      sync.Mutex
	items   map[string]*sm.RawDescribe
	loads   int
	deletes int
	fail    error
}

func newMemStore() *memStore { return &memStore{items: map[string]*sm.RawDescribe{}} }

func (s *memStore) Load(_ context.Context, name string) (*sm.RawDescribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loads++
	if s.fail != nil {
		return nil, s.fail
	}
	return s.items[name], nil
}

func (s *memStore) Save(_ context.Context, name string, raw *sm.RawDescribe) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.items[name] = raw
	return nil
}

func (s *memStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.items, name)
	return nil
}

// ─── assertion helpers ────────────────────────────────────────────────────────

func bg() context.Context { return context.Background() }

func assertErrCode(t *testing.T, err error, code sm.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %q, got nil", code)
	}
	if !sm.IsCode(err, code) {
		t.Errorf("expected error code %q, got: %v", code, err)
	}
}

func assertContains(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Errorf("%q does not contain %q", s, sub)
	}
}

func assertKeys(t *testing.T, m map[string]any, want ...string) {
	t.Helper()
	if len(m) != len(want) {
		t.Errorf("expected keys %v, got %v", want, m)
		return
	}
	for _, k := range want {
		if _, ok := m[k]; !ok {
			t.Errorf("missing key %q in %v", k, m)
		}
	}
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
