package cache

import (
	"reflect"
	"sync"
	"testing"
)

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()

	first, err := Register[Item](r)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	second, err := r.Register(&Item{})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	third, err := r.Register(reflect.TypeOf(Item{}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if first != second || first != third {
		t.Error("expected the same descriptor for every registration of Item")
	}
}

func TestRegistry_RetentionIsFixed(t *testing.T) {
	r := NewRegistry()

	d, err := Register[Owner](r, WithRetention(RetentionStrong))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if d.Retention != RetentionStrong {
		t.Errorf("Retention = %v, want strong", d.Retention)
	}

	if _, err := Register[Owner](r); err != nil {
		t.Errorf("re-registering without options should succeed, got %v", err)
	}
	if _, err := Register[Owner](r, WithRetention(RetentionStrong)); err != nil {
		t.Errorf("re-registering with the same retention should succeed, got %v", err)
	}

	_, err = Register[Owner](r, WithRetention(RetentionReclaimable))
	if !HasTextCode(err, TextCodeRetentionConflict) {
		t.Errorf("Register() error = %v, want %s", err, TextCodeRetentionConflict)
	}
}

func TestRegistry_RegisterRejectsInvalidModels(t *testing.T) {
	type NoKey struct {
		Name string
	}

	tests := []struct {
		name  string
		model any
		code  string
	}{
		{name: "nil", model: nil, code: TextCodeInvalidEntity},
		{name: "scalar", model: 42, code: TextCodeInvalidEntity},
		{name: "anonymous struct", model: struct{ ID int }{}, code: TextCodeInvalidEntity},
		{name: "no primary key", model: NoKey{}, code: TextCodeMissingPrimaryKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewRegistry().Register(tt.model)
			if err == nil {
				t.Fatalf("Register() = %v, want error", d)
			}
			if !HasTextCode(err, tt.code) {
				t.Errorf("Register() error = %v, want text code %s", err, tt.code)
			}
		})
	}
}

func TestRegistry_WithTable(t *testing.T) {
	d, err := Register[Tag](NewRegistry(), WithTable("labels"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if d.Table != "labels" {
		t.Errorf("Table = %q, want labels", d.Table)
	}
}

func TestRegistry_Hierarchy(t *testing.T) {
	r, ds := newTestRegistry(t)

	parent, ok := ds["special"].Parent()
	if !ok || parent != ds["item"] {
		t.Errorf("SpecialItem.Parent() = %v, %v, want Item", parent, ok)
	}

	children := ds["item"].Children()
	if len(children) != 1 || children[0] != ds["special"] {
		t.Errorf("Item.Children() = %v, want [SpecialItem]", children)
	}

	if got := ds["owner"].Children(); len(got) != 0 {
		t.Errorf("Owner.Children() = %v, want none", got)
	}

	roots := r.Roots()
	if len(roots) != 4 {
		t.Fatalf("Roots() returned %d descriptors, want 4", len(roots))
	}
	for _, d := range roots {
		if d == ds["special"] {
			t.Error("SpecialItem must not be a root")
		}
	}
}

func TestRegistry_ParentSkipsUnregisteredEmbeds(t *testing.T) {
	r := NewRegistry()
	items := MustRegister[Item](r)
	audited := MustRegister[AuditedItem](r)

	parent, ok := audited.Parent()
	if !ok || parent != items {
		t.Errorf("AuditedItem.Parent() = %v, %v, want Item", parent, ok)
	}
	if children := items.Children(); len(children) != 1 || children[0] != audited {
		t.Errorf("Item.Children() = %v, want [AuditedItem]", children)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	r, ds := newTestRegistry(t)

	if d, ok := r.DescriptorOf(&Item{}); !ok || d != ds["item"] {
		t.Error("DescriptorOf(*Item) should resolve the Item descriptor")
	}
	if d, ok := r.Lookup(reflect.TypeOf(Profile{})); !ok || d != ds["profile"] {
		t.Error("Lookup(Profile) should resolve the Profile descriptor")
	}
	if _, ok := r.DescriptorOf("not an entity"); ok {
		t.Error("DescriptorOf(string) should miss")
	}
	if _, ok := r.DescriptorOf(nil); ok {
		t.Error("DescriptorOf(nil) should miss")
	}
	if _, ok := r.Lookup(nil); ok {
		t.Error("Lookup(nil) should miss")
	}
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	results := make([]*Descriptor, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := Register[Item](r)
			if err != nil {
				t.Errorf("Register() error = %v", err)
				return
			}
			results[i] = d
		}(i)
	}
	wg.Wait()

	for _, d := range results {
		if d != results[0] {
			t.Fatal("concurrent registrations returned different descriptors")
		}
	}
}

func TestMustRegister_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected MustRegister to panic for a type without primary key")
		}
	}()

	type NoKey struct{ Name string }
	MustRegister[NoKey](NewRegistry())
}
