package cache

import "github.com/uptrace/bun"

type Item struct {
	bun.BaseModel `bun:"table:items"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name"`
}

type SpecialItem struct {
	Item

	Rarity string
}

type Owner struct {
	ID   int64 `bun:",pk"`
	Name string
}

// Profile's primary key is also a foreign key to Owner.
type Profile struct {
	OwnerID int64  `bun:"owner_id,pk"`
	Owner   *Owner `bun:"rel:belongs-to,join:owner_id=id"`
	Bio     string
}

type Tag struct {
	ID    string
	Label string
	cache string
}

type Audit struct {
	Note string `bun:"note"`
	Skip string `bun:"-"`
}

// AuditedItem embeds a helper struct ahead of its parent entity.
type AuditedItem struct {
	Audit
	Item

	Grade string
}

type keyedRef string

func (k keyedRef) PrimaryKey() any { return string(k) }

func newTestRegistry(t interface{ Fatalf(string, ...any) }) (*Registry, map[string]*Descriptor) {
	r := NewRegistry()
	out := map[string]*Descriptor{}

	for name, model := range map[string]any{
		"item":    (*Item)(nil),
		"special": (*SpecialItem)(nil),
		"owner":   (*Owner)(nil),
		"profile": (*Profile)(nil),
		"tag":     (*Tag)(nil),
	} {
		d, err := r.Register(model)
		if err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
		out[name] = d
	}
	return r, out
}
