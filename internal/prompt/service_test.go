package prompt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loceval/loceval/internal/models"
	"github.com/loceval/loceval/internal/store"
	"github.com/loceval/loceval/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *store.Stores) {
	t.Helper()
	stores := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(stores.Prompts, stores.History, nil, logger), stores
}

func sections(content string) []models.PromptSection {
	return []models.PromptSection{{ID: "s1", TypeID: "instructions", Name: "instructions", Content: content}}
}

func TestCreateFirstVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "greeting", Project: "game-a", Language: "DE", Sections: sections("translate"),
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}
	if v.Version != "1.0" {
		t.Errorf("first version = %q, want 1.0", v.Version)
	}
	if v.BasePromptID != v.ID {
		t.Error("first version should be its own base")
	}
	if !v.IsLatest {
		t.Error("first version should be latest")
	}
	if v.AssembledText == "" {
		t.Error("assembled text not cached on create")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{Language: "DE"}); err == nil {
		t.Error("expected validation error for missing name")
	}
	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "x"}); err == nil {
		t.Error("expected validation error for missing language")
	}
}

func TestVersionChainInvariant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "greeting", Project: "game-a", Language: "DE", Sections: sections("v1"),
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}

	prev := first
	wantVersions := []string{"2.0", "3.0", "4.0"}
	for _, want := range wantVersions {
		next, err := svc.SaveNewVersion(ctx, prev.ID, SaveRequest{Sections: sections("edit " + want)})
		if err != nil {
			t.Fatalf("SaveNewVersion: %v", err)
		}
		if next.Version != want {
			t.Errorf("version = %q, want %q", next.Version, want)
		}
		if next.BasePromptID != first.ID {
			t.Error("new version left the chain")
		}
		prev = next
	}

	chain, err := svc.ListVersionChain(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListVersionChain: %v", err)
	}
	if len(chain) != 4 {
		t.Fatalf("chain length = %d, want 4", len(chain))
	}
	latestCount := 0
	for _, v := range chain {
		if v.IsLatest {
			latestCount++
			if v.ID != prev.ID {
				t.Error("latest flag on a stale version")
			}
		}
	}
	if latestCount != 1 {
		t.Errorf("latest count = %d, want exactly 1", latestCount)
	}
}

func TestSaveNewVersionCopiesBaseFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "greeting", Description: "says hi", Project: "game-a", Language: "DE",
		Sections: sections("v1"), Tags: []string{"dialog"},
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}

	name := "greeting v2"
	next, err := svc.SaveNewVersion(ctx, first.ID, SaveRequest{Name: &name})
	if err != nil {
		t.Fatalf("SaveNewVersion: %v", err)
	}
	if next.Name != "greeting v2" {
		t.Errorf("name = %q, want the changed value", next.Name)
	}
	if next.Project != "game-a" || next.Language != "DE" || next.Description != "says hi" {
		t.Error("unchanged fields not copied from base")
	}
	if len(next.Sections) != 1 || next.Sections[0].Content != "v1" {
		t.Error("sections not copied from base")
	}
}

func TestVersionParseFallback(t *testing.T) {
	svc, stores := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "greeting", Language: "DE", Sections: sections("v1"),
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}

	// Corrupt the stored version string; the next save resets to 1.0 instead
	// of failing.
	stored, err := stores.Prompts.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stored.Version = "not-a-number"
	if err := stores.Prompts.Update(ctx, stored); err != nil {
		t.Fatalf("Update: %v", err)
	}

	next, err := svc.SaveNewVersion(ctx, first.ID, SaveRequest{})
	if err != nil {
		t.Fatalf("SaveNewVersion: %v", err)
	}
	if next.Version != "1.0" {
		t.Errorf("version after parse failure = %q, want 1.0", next.Version)
	}
}

func TestProductionUniquenessAcrossChains(t *testing.T) {
	svc, stores := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "a", Project: "game-a", Language: "DE", Sections: sections("a"), IsProduction: true,
	})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "b", Project: "game-a", Language: "DE", Sections: sections("b"), IsProduction: true,
	})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}

	got, err := svc.GetProduction(ctx, "game-a", "DE")
	if err != nil {
		t.Fatalf("GetProduction: %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("production = %s, want the last writer %s", got.ID, b.ID)
	}
	demotedA, err := stores.Prompts.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if demotedA.IsProduction {
		t.Error("earlier production holder not demoted")
	}
}

func TestProductionScopedByCell(t *testing.T) {
	svc, stores := newTestService(t)
	ctx := context.Background()

	de, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "a", Project: "game-a", Language: "DE", Sections: sections("a"), IsProduction: true,
	})
	if err != nil {
		t.Fatalf("create de: %v", err)
	}
	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "b", Project: "game-a", Language: "FR", Sections: sections("b"), IsProduction: true,
	}); err != nil {
		t.Fatalf("create fr: %v", err)
	}

	still, err := stores.Prompts.Get(ctx, de.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !still.IsProduction {
		t.Error("production in a different language cell was demoted")
	}
}

func TestSoftDeleteIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	v, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "x", Language: "DE", Sections: sections("x")})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}
	if err := svc.SoftDelete(ctx, v.ID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if err := svc.SoftDelete(ctx, v.ID); err != nil {
		t.Errorf("second SoftDelete should be a no-op, got %v", err)
	}
	if _, err := svc.GetVersion(ctx, v.ID); err == nil {
		t.Error("deleted version still visible through GetVersion")
	}
	chain, err := svc.ListVersionChain(ctx, v.ID)
	if err != nil {
		t.Fatalf("ListVersionChain: %v", err)
	}
	if len(chain) != 0 {
		t.Error("deleted version still listed in its chain")
	}
}

func TestRestoreFromHistory(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "original", Language: "DE", Sections: sections("old content"),
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}
	// Saving pushes the pre-edit state to history.
	name := "edited"
	next, err := svc.SaveNewVersion(ctx, first.ID, SaveRequest{Name: &name, Sections: sections("new content")})
	if err != nil {
		t.Fatalf("SaveNewVersion: %v", err)
	}

	records, err := svc.ListHistory(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("history records = %d, want 1", len(records))
	}

	// Restoring the new head from the old snapshot overwrites its fields and
	// snapshots the pre-restore state first.
	restored, err := svc.Restore(ctx, next.ID, records[0].ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Name != "original" {
		t.Errorf("restored name = %q, want %q", restored.Name, "original")
	}
	if restored.Sections[0].Content != "old content" {
		t.Error("restored sections not taken from the history record")
	}
	afterRecords, err := svc.ListHistory(ctx, next.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(afterRecords) != 1 {
		t.Errorf("pre-restore snapshot missing: records = %d, want 1", len(afterRecords))
	}
}

func TestRestoreRejectsForeignRecord(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "a", Language: "DE", Sections: sections("a")})
	if err != nil {
		t.Fatalf("create a: %v", err)
	}
	b, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "b", Language: "DE", Sections: sections("b")})
	if err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := svc.SaveNewVersion(ctx, a.ID, SaveRequest{}); err != nil {
		t.Fatalf("SaveNewVersion: %v", err)
	}
	records, err := svc.ListHistory(ctx, a.ID)
	if err != nil || len(records) == 0 {
		t.Fatalf("ListHistory: %v (%d records)", err, len(records))
	}
	if _, err := svc.Restore(ctx, b.ID, records[0].ID); err == nil {
		t.Error("restore accepted a history record from a different prompt")
	}
}

func TestListLatestScopedByLanguage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "de", Language: "DE", Sections: sections("x")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{Name: "fr", Language: "FR", Sections: sections("y")}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.ListLatest(ctx, "DE")
	if err != nil {
		t.Fatalf("ListLatest: %v", err)
	}
	if len(got) != 1 || got[0].Language != "DE" {
		t.Errorf("ListLatest leaked versions outside the language scope: %+v", got)
	}
}

// fakeCache records cache traffic for the production-lookup tests.
type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deletes = append(c.deletes, key)
	return nil
}

func TestRestoreDemotionInvalidatesProductionCache(t *testing.T) {
	stores := memory.New()
	cache := newFakeCache()
	svc := NewService(stores.Prompts, stores.History, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	first, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "p", Project: "game-a", Language: "DE", Sections: sections("x"),
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}
	// Promoting via save snapshots the non-production state to history.
	isProd := true
	next, err := svc.SaveNewVersion(ctx, first.ID, SaveRequest{IsProduction: &isProd})
	if err != nil {
		t.Fatalf("SaveNewVersion: %v", err)
	}
	records, err := svc.ListHistory(ctx, first.ID)
	if err != nil || len(records) != 1 {
		t.Fatalf("ListHistory: %v (%d records)", err, len(records))
	}

	if _, err := svc.GetProduction(ctx, "game-a", "DE"); err != nil {
		t.Fatalf("GetProduction: %v", err)
	}
	key := productionCacheKey("game-a", "DE")
	if _, ok := cache.data[key]; !ok {
		t.Fatal("production lookup not cached before restore")
	}

	// Restoring onto the non-production snapshot demotes; the cached cell must
	// not keep serving the demoted version.
	restored, err := svc.Restore(ctx, next.ID, records[0].ID)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.IsProduction {
		t.Fatal("restore kept production status from before the snapshot")
	}
	if _, ok := cache.data[key]; ok {
		t.Error("stale production entry survived a demoting restore")
	}
	if _, err := svc.GetProduction(ctx, "game-a", "DE"); err == nil {
		t.Error("demoted cell still resolves a production version")
	}
}

func TestGetProductionUsesCache(t *testing.T) {
	stores := memory.New()
	cache := newFakeCache()
	svc := NewService(stores.Prompts, stores.History, cache, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	v, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "p", Project: "game-a", Language: "DE", Sections: sections("x"), IsProduction: true,
	})
	if err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}

	first, err := svc.GetProduction(ctx, "game-a", "DE")
	if err != nil {
		t.Fatalf("GetProduction: %v", err)
	}
	if first.ID != v.ID {
		t.Fatalf("production = %s, want %s", first.ID, v.ID)
	}
	if len(cache.data) == 0 {
		t.Error("production lookup not written to cache")
	}

	// Promoting a new production invalidates the cached cell.
	if _, err := svc.CreateFirstVersion(ctx, CreateRequest{
		Name: "q", Project: "game-a", Language: "DE", Sections: sections("y"), IsProduction: true,
	}); err != nil {
		t.Fatalf("CreateFirstVersion: %v", err)
	}
	if len(cache.deletes) == 0 {
		t.Error("promotion did not invalidate the cached production lookup")
	}
}
