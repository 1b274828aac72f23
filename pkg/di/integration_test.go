package di

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-identitymap/identitymap"
	"github.com/goliatone/go-identitymap/pkg/testsupport"
	"github.com/goliatone/go-identitymap/repositorycache"
)

// User represents a test model for integration tests
type User struct {
	bun.BaseModel `bun:"table:users"`

	ID    string `json:"id" bun:"id,pk"`
	Name  string `json:"name" bun:"name"`
	Email string `json:"email" bun:"email"`
}

// Admin embeds User, so resetting users cascades to admins
type Admin struct {
	User
	Level int `json:"level" bun:"level"`
}

type usersFixture struct {
	container *Container
	base      *testsupport.MemoryRepository[*User]
	repo      *repositorycache.CachedRepository[*User]
}

func newUsersFixture(t testing.TB) *usersFixture {
	t.Helper()

	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("Failed to create DI container: %v", err)
	}
	t.Cleanup(container.Close)

	d, err := Register[User](container)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	base := testsupport.NewMemoryRepository[*User](d)

	repo, err := NewCachedRepository[*User](container, base)
	if err != nil {
		t.Fatalf("NewCachedRepository() error = %v", err)
	}

	base.Seed(
		&User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		&User{ID: "u2", Name: "Bob", Email: "bob@example.com"},
	)
	return &usersFixture{container: container, base: base, repo: repo}
}

func TestEndToEndRequestFlow(t *testing.T) {
	f := newUsersFixture(t)

	handler := f.container.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		profile, err := f.repo.GetByID(ctx, "u1")
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		// a later read in the same request sees the in-memory change
		profile.Name = r.URL.Query().Get("name")
		again, _ := f.repo.GetByID(ctx, "u1")

		listed, _, _ := f.repo.List(ctx)

		json.NewEncoder(w).Encode(map[string]any{
			"name":      again.Name,
			"same":      again == profile,
			"listed":    listed[0] == profile,
			"baseCalls": f.base.Calls("GetByID"),
		})
	}))

	tests := []struct {
		name      string
		query     string
		wantName  string
		wantCalls float64
	}{
		{name: "first request", query: "?name=Ada+L", wantName: "Ada L", wantCalls: 1},
		{name: "second request starts fresh", query: "?name=Ada+K", wantName: "Ada K", wantCalls: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1"+tt.query, nil))

			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid body %q: %v", rec.Body.String(), err)
			}
			if body["name"] != tt.wantName {
				t.Errorf("name = %v, want %s", body["name"], tt.wantName)
			}
			if body["same"] != true || body["listed"] != true {
				t.Errorf("reads within a request should share the instance: %v", body)
			}
			if body["baseCalls"] != tt.wantCalls {
				t.Errorf("base GetByID calls = %v, want %v", body["baseCalls"], tt.wantCalls)
			}
		})
	}

	if live := f.container.Manager().Live(); live != 0 {
		t.Errorf("Live() = %d, want 0 after requests", live)
	}
}

func TestWriteFlow(t *testing.T) {
	f := newUsersFixture(t)
	ctx, scope := f.container.Begin(context.Background())
	defer scope.End(ctx)

	cached, _ := f.repo.GetByID(ctx, "u2")

	updated := &User{ID: "u2", Name: "Robert", Email: "bob@example.com"}
	if _, err := f.repo.Update(ctx, updated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, _ := f.repo.GetByID(ctx, "u2")
	if got != updated || got == cached {
		t.Error("a saved instance should replace the cached one")
	}

	if err := f.repo.Delete(ctx, got); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := f.repo.GetByID(ctx, "u2"); err == nil {
		t.Error("GetByID() after Delete should miss and fail")
	}
}

func TestErrorPropagation(t *testing.T) {
	f := newUsersFixture(t)
	ctx, scope := f.container.Begin(context.Background())
	defer scope.End(ctx)

	if _, err := f.repo.GetByID(ctx, "missing"); err == nil {
		t.Error("Expected error from base repository to propagate")
	}
	if _, err := f.repo.Update(ctx, &User{ID: "missing"}); err == nil {
		t.Error("Expected update error to propagate")
	}
	if n := scope.Len(f.repo.Descriptor()); n != 0 {
		t.Errorf("Len() = %d, want 0 after failed operations", n)
	}
}

func TestDeleteWhereCascadesToSubclasses(t *testing.T) {
	f := newUsersFixture(t)
	admins, err := Register[Admin](f.container)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, scope := f.container.Begin(context.Background())
	defer scope.End(ctx)

	f.repo.GetByID(ctx, "u1")
	f.container.Bus().Saved(ctx, &Admin{User: User{ID: "a1"}, Level: 3})

	if err := f.repo.DeleteWhere(ctx); err != nil {
		t.Fatalf("DeleteWhere() error = %v", err)
	}
	if scope.Len(f.repo.Descriptor()) != 0 || scope.Len(admins) != 0 {
		t.Error("DeleteWhere should reset users and the tables of entities embedding them")
	}
}

func TestSchemaChangeThroughBun(t *testing.T) {
	f := newUsersFixture(t)

	sqldb, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })
	db.AddQueryHook(f.container.SchemaHook())

	ctx, scope := f.container.Begin(context.Background())
	defer scope.End(ctx)

	f.repo.GetByID(ctx, "u1")
	if scope.Len(f.repo.Descriptor()) != 1 {
		t.Fatal("expected u1 to be cached")
	}

	if _, err := db.NewCreateTable().Model((*User)(nil)).Exec(ctx); err != nil {
		t.Fatalf("create table error = %v", err)
	}

	if n := scope.Len(f.repo.Descriptor()); n != 0 {
		t.Errorf("Len() after CREATE TABLE = %d, want 0", n)
	}
}

func TestScopeWithoutContainerScope(t *testing.T) {
	f := newUsersFixture(t)
	ctx := context.Background()

	a, _ := f.repo.GetByID(ctx, "u1")
	b, _ := f.repo.GetByID(ctx, "u1")
	if a == b {
		t.Error("without a scope the decorator should not share instances")
	}
	if identitymap.ScopeFromContext(ctx) != nil {
		t.Error("background context should carry no scope")
	}
}
