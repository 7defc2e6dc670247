package tests

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	sm "github.com/cloudxsgmbh/salesman-go"
)

func TestModel_Registry(t *testing.T) {
	f := newFixture(t)
	if got := f.sm.ListModels(); !reflect.DeepEqual(got, []string{"Attachment", "Lead", "User"}) {
		t.Errorf("ListModels = %v", got)
	}
	_, err := f.sm.GetModel("Unknown")
	assertErrCode(t, err, sm.ErrArgument)
	assertContains(t, err.Error(), "'Unknown' is not a valid model")

	_, err = f.sm.Model("Nil", nil)
	assertErrCode(t, err, sm.ErrArgument)

	m := f.model(t, "Lead")
	if m.Name != "Lead" || m.ObjectName() != "Lead" {
		t.Errorf("model names: %q %q", m.Name, m.ObjectName())
	}
}

func TestModel_ConnectOnce(t *testing.T) {
	f := newFixture(t)
	err := f.sm.Connect(bg(), sm.StaticConnection(f.org))
	assertErrCode(t, err, sm.ErrArgument)
}

func TestModel_NotConnected(t *testing.T) {
	s := sm.New(sm.Options{Logger: sm.NopLogger{}})
	m := mustModel(t, s, "Lead", leadSchema())
	_, err := m.Describe(bg())
	assertErrCode(t, err, sm.ErrArgument)
	assertContains(t, err.Error(), "not connected")
}

func TestModel_Describe(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "Lead")

	d, err := m.Describe(bg())
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if !d.Creatable || !d.Updatable || !d.Deletable || d.LabelPlural != "Leads" {
		t.Errorf("description: %+v", d)
	}
	if d.Fields.ByRelationship["Owner"] != d.Fields.ByName["OwnerId"] {
		t.Error("relationship index must share the field")
	}

	def, err := m.Definition(bg())
	if err != nil {
		t.Fatalf("Definition: %v", err)
	}
	if def.IDField != "id" {
		t.Errorf("IDField = %q", def.IDField)
	}
	errs := def.Errors()
	if len(errs) != 2 || errs["fax"] == nil || errs["bogus"] == nil {
		t.Errorf("field errors: %v", errs)
	}
	assertContains(t, errs["fax"].Error(), "deprecated")
	assertContains(t, errs["bogus"].Error(), "unknown column Bogus__c")
	if _, ok := def.Fields()["fax"]; ok {
		t.Error("deprecated field must not be selectable")
	}
	if rel := def.Relationships["owner"]; rel == nil || rel.RelationshipName != "Owner" || rel.Collection {
		t.Errorf("owner relationship: %+v", rel)
	}
	if rel := def.Relationships["attachments"]; rel == nil || rel.RelationshipName != "Attachments" || !rel.Collection {
		t.Errorf("attachments relationship: %+v", rel)
	}
	if !f.logged("error", `Field "bogus" of "Lead" is unusable`) {
		t.Error("unusable field not logged")
	}

	tr, err := m.Transformer(bg())
	if err != nil {
		t.Fatalf("Transformer: %v", err)
	}
	if _, ok := tr.Column("fax"); ok {
		t.Error("transformer must skip deprecated fields")
	}

	if _, err := m.Describe(bg()); err != nil {
		t.Fatal(err)
	}
	if n := f.org.describeCount("Lead"); n != 1 {
		t.Errorf("describe calls = %d, want 1", n)
	}
}

func TestModel_DescribeSharedFetch(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "Lead")
	gate := make(chan struct{})
	f.org.setGate(gate)

	var wg sync.WaitGroup
	results := make([]*sm.Description, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := m.Describe(bg())
			if err != nil {
				t.Errorf("Describe: %v", err)
			}
			results[i] = d
		}(i)
	}
	waitFor(t, "describe call", func() bool { return f.org.describeCount("Lead") == 1 })
	close(gate)
	wg.Wait()

	if n := f.org.describeCount("Lead"); n != 1 {
		t.Errorf("describe calls = %d, want 1", n)
	}
	for _, d := range results {
		if d != results[0] {
			t.Fatal("callers must share one description")
		}
	}
}

func TestModel_DescribeWaiterCancel(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "Lead")
	gate := make(chan struct{})
	f.org.setGate(gate)

	ctx, cancel := context.WithCancel(bg())
	cancelled := make(chan error, 1)
	go func() {
		_, err := m.Describe(ctx)
		cancelled <- err
	}()
	waitFor(t, "describe call", func() bool { return f.org.describeCount("Lead") == 1 })

	done := make(chan error, 1)
	go func() {
		_, err := m.Describe(bg())
		done <- err
	}()

	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Errorf("other caller: %v", err)
	}
	if _, err := m.Describe(bg()); err != nil {
		t.Fatal(err)
	}
	if n := f.org.describeCount("Lead"); n != 1 {
		t.Errorf("describe calls = %d, want 1", n)
	}
}

func TestModel_ClearCacheDuringFetch(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "Lead")
	gate := make(chan struct{})
	f.org.setGate(gate)

	type result struct {
		d   *sm.Description
		err error
	}
	first := make(chan result, 1)
	go func() {
		d, err := m.Describe(bg())
		first <- result{d, err}
	}()
	waitFor(t, "describe call", func() bool { return f.org.describeCount("Lead") == 1 })

	if err := m.ClearCache(bg()); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	close(gate)
	stale := <-first
	if stale.err != nil || stale.d == nil {
		t.Fatalf("in-flight describe: %v", stale.err)
	}

	fresh, err := m.Describe(bg())
	if err != nil {
		t.Fatal(err)
	}
	if fresh == stale.d {
		t.Error("stale describe must not be cached")
	}
	again, _ := m.Describe(bg())
	if again != fresh {
		t.Error("fresh describe must be cached")
	}
	if n := f.org.describeCount("Lead"); n != 2 {
		t.Errorf("describe calls = %d, want 2", n)
	}
	if obj := f.org.object("Lead"); obj.clears != 1 {
		t.Errorf("remote cache clears = %d, want 1", obj.clears)
	}
}

func TestModel_DescribeFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	m := f.model(t, "Lead")
	lead := f.org.object("Lead")
	lead.describeErr = errors.New("REQUEST_LIMIT_EXCEEDED")

	_, err := m.Describe(bg())
	assertErrCode(t, err, sm.ErrRemote)
	assertContains(t, err.Error(), "REQUEST_LIMIT_EXCEEDED")

	f.org.mu.Lock()
	lead.describeErr = nil
	f.org.mu.Unlock()
	if _, err := m.Describe(bg()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := f.org.describeCount("Lead"); n != 2 {
		t.Errorf("describe calls = %d, want 2", n)
	}
}

func TestModel_UnknownRelationship(t *testing.T) {
	cases := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{"unregistered", map[string]any{"x": map[string]any{"ref": "Nope"}}, "not a registered model"},
		{"no lookup", map[string]any{"x": map[string]any{"ref": "Attachment"}}, "no relationship to Attachment"},
		{"no child", map[string]any{"x": map[string]any{"ref": "User", "collection": true}}, "no child relationship to User"},
		{"deprecated child", map[string]any{"x": map[string]any{"ref": "Case", "collection": true}}, "deprecated"},
		{"wrong override", map[string]any{"x": map[string]any{"ref": "User", "relationship": "Manager"}}, "no relationship to User"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			mustModel(t, f.sm, "Case", sm.MustSchema("Case", map[string]any{"id": "Id"}))
			m := mustModel(t, f.sm, "BadLead", sm.MustSchema("Lead", tc.attrs))
			_, err := m.Describe(bg())
			assertErrCode(t, err, sm.ErrUnknownRelationship)
			if err != nil {
				assertContains(t, err.Error(), tc.want)
			}
		})
	}
}

func TestModel_RelationshipOverride(t *testing.T) {
	f := newFixture(t)
	m := mustModel(t, f.sm, "LeadOwner", sm.MustSchema("Lead", map[string]any{
		"id":    "Id",
		"owner": map[string]any{"ref": "User", "relationship": "Owner"},
	}))
	def, err := m.Definition(bg())
	if err != nil {
		t.Fatal(err)
	}
	if def.Relationships["owner"].RelationshipName != "Owner" {
		t.Errorf("relationship: %+v", def.Relationships["owner"])
	}
}

func TestModel_DescribeStore(t *testing.T) {
	store := newMemStore()
	withStore := func(o *sm.Options) { o.DescribeStore = store }

	f1 := newFixture(t, withStore)
	if _, err := f1.model(t, "Lead").Describe(bg()); err != nil {
		t.Fatal(err)
	}
	if store.items["Lead"] == nil {
		t.Fatal("describe not stored")
	}

	f2 := newFixture(t, withStore)
	m := f2.model(t, "Lead")
	if _, err := m.Describe(bg()); err != nil {
		t.Fatal(err)
	}
	if n := f2.org.describeCount("Lead"); n != 0 {
		t.Errorf("remote describe calls = %d, want 0", n)
	}

	if err := m.ClearCache(bg()); err != nil {
		t.Fatal(err)
	}
	if store.items["Lead"] != nil || store.deletes != 1 {
		t.Error("ClearCache must drop the stored describe")
	}
	if _, err := m.Describe(bg()); err != nil {
		t.Fatal(err)
	}
	if n := f2.org.describeCount("Lead"); n != 1 {
		t.Errorf("remote describe calls = %d, want 1", n)
	}
}

func TestModel_DescribeStoreFailureIsLogged(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("table not found")
	f := newFixture(t, func(o *sm.Options) { o.DescribeStore = store })

	if _, err := f.model(t, "Lead").Describe(bg()); err != nil {
		t.Fatalf("store failures must not fail describe: %v", err)
	}
	if !f.logged("error", "Describe store load failed") || !f.logged("error", "Describe store save failed") {
		t.Error("store failures not logged")
	}
}

func TestModel_CallAndInvoke(t *testing.T) {
	f := newFixture(t)
	schema := leadSchema()
	schema.Static("countAll", func(ctx context.Context, m *sm.Model, args ...any) (any, error) {
		rows, err := m.Find(ctx, nil)
		return len(rows), err
	})
	schema.Method("fullName", func(_ context.Context, _ *sm.Model, rec sm.Record, args ...any) (any, error) {
		return sm.GetPath(rec, "contact.firstName", "").(string) + args[0].(string) + sm.GetPath(rec, "contact.lastName", "").(string), nil
	})
	m := mustModel(t, f.sm, "Lead", schema)
	f.org.object("Lead").rows = []sm.Record{{"Id": "1"}, {"Id": "2"}}

	n, err := m.Call(bg(), "countAll")
	if err != nil || n != 2 {
		t.Errorf("countAll = %v, %v", n, err)
	}
	name, err := m.Invoke(bg(), "fullName", sm.Record{"contact": map[string]any{"firstName": "Jane", "lastName": "Doe"}}, " ")
	if err != nil || name != "Jane Doe" {
		t.Errorf("fullName = %v, %v", name, err)
	}

	_, err = m.Call(bg(), "missing")
	assertErrCode(t, err, sm.ErrArgument)
	_, err = m.Invoke(bg(), "missing", nil)
	assertErrCode(t, err, sm.ErrArgument)
}
