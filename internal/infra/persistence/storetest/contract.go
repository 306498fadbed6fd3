// Package storetest provides a reusable contract suite that every
// domain.RecordStore implementation runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"epibot/pkg/domain"
)

// Factory returns a fresh, empty store for a single sub-test.
type Factory func(t *testing.T) domain.RecordStore

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// Run executes the RecordStore contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertGetRoundTrip", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		in := domain.Record{
			Name:       "Rex",
			Link:       "https://canecorsopedigree.com/rex",
			MotherName: "Luna",
			MotherLink: "https://canecorsopedigree.com/luna",
			FatherName: "Max",
			FatherLink: "https://canecorsopedigree.com/max",
			Sex:        domain.SexMale,
			BirthDate:  "2021.03.27",
			OwnerID:    42,
			CreatedAt:  base,
		}
		id, err := store.Insert(ctx, in)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if id == "" {
			t.Fatalf("expected generated id")
		}
		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		in.ID = id
		if !got.CreatedAt.Equal(in.CreatedAt) {
			t.Fatalf("created_at mismatch: got %v want %v", got.CreatedAt, in.CreatedAt)
		}
		got.CreatedAt = in.CreatedAt
		if got != in {
			t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
		}
	})

	t.Run("InsertFillsCreatedAt", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		id, err := store.Insert(ctx, domain.Record{Name: "Nova", MotherName: "A", FatherName: "B"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.CreatedAt.IsZero() {
			t.Fatalf("expected created_at to be set")
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("SearchCaseInsensitiveNewestFirst", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		mustInsert(t, store, domain.Record{Name: "Rex", MotherName: "Luna", FatherName: "Max", CreatedAt: base})
		mustInsert(t, store, domain.Record{Name: "Fiore", MotherName: "Bella", FatherName: "Zeus", CreatedAt: base.Add(time.Hour)})
		mustInsert(t, store, domain.Record{Name: "Bruno", MotherName: "Kira", FatherName: "Thor", CreatedAt: base.Add(2 * time.Hour)})

		got, err := store.SearchByName(ctx, "RE", domain.DefaultSearchLimit)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 matches, got %+v", got)
		}
		if got[0].Name != "Fiore" || got[1].Name != "Rex" {
			t.Fatalf("expected newest first [Fiore Rex], got [%s %s]", got[0].Name, got[1].Name)
		}
		if got[0].MotherName != "Bella" || got[0].FatherName != "Zeus" {
			t.Fatalf("expected parent names in summary, got %+v", got[0])
		}
	})

	t.Run("SearchLimit", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		for i := 0; i < domain.DefaultSearchLimit+5; i++ {
			mustInsert(t, store, domain.Record{Name: fmt.Sprintf("Dog %02d", i), MotherName: "M", FatherName: "F", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		}
		got, err := store.SearchByName(ctx, "dog", 100)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != domain.DefaultSearchLimit {
			t.Fatalf("expected %d results, got %d", domain.DefaultSearchLimit, len(got))
		}
		if got[0].Name != fmt.Sprintf("Dog %02d", domain.DefaultSearchLimit+4) {
			t.Fatalf("expected newest first, got %s", got[0].Name)
		}
		few, err := store.SearchByName(ctx, "dog", 3)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(few) != 3 {
			t.Fatalf("expected 3 results, got %d", len(few))
		}
	})

	t.Run("SearchNoMatches", func(t *testing.T) {
		store := newStore(t)
		mustInsert(t, store, domain.Record{Name: "Rex", MotherName: "Luna", FatherName: "Max"})
		got, err := store.SearchByName(context.Background(), "zzz", domain.DefaultSearchLimit)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 0 {
			t.Fatalf("expected no matches, got %+v", got)
		}
	})

	t.Run("SearchTreatsWildcardsLiterally", func(t *testing.T) {
		store := newStore(t)
		mustInsert(t, store, domain.Record{Name: "Rex", MotherName: "Luna", FatherName: "Max"})
		mustInsert(t, store, domain.Record{Name: "100% Rex", MotherName: "Luna", FatherName: "Max"})
		got, err := store.SearchByName(context.Background(), "%", domain.DefaultSearchLimit)
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(got) != 1 || got[0].Name != "100% Rex" {
			t.Fatalf("expected only the literal %% match, got %+v", got)
		}
	})

	t.Run("DeleteByName", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		mustInsert(t, store, domain.Record{Name: "Rex", MotherName: "Luna", FatherName: "Max"})
		mustInsert(t, store, domain.Record{Name: "rex", MotherName: "Kira", FatherName: "Thor"})
		keep := mustInsert(t, store, domain.Record{Name: "Rexa", MotherName: "Kira", FatherName: "Thor"})

		n, err := store.DeleteByName(ctx, "REX")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if n != 2 {
			t.Fatalf("expected 2 deletions, got %d", n)
		}
		if _, err := store.Get(ctx, keep); err != nil {
			t.Fatalf("expected Rexa to survive: %v", err)
		}
	})

	t.Run("DeleteByNameZeroMatches", func(t *testing.T) {
		store := newStore(t)
		n, err := store.DeleteByName(context.Background(), "Ghost")
		if err != nil {
			t.Fatalf("delete of missing name must not error: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected 0 deletions, got %d", n)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		mustInsert(t, store, domain.Record{Name: "Old", MotherName: "M", FatherName: "F", CreatedAt: base})
		mustInsert(t, store, domain.Record{Name: "New", MotherName: "M", FatherName: "F", CreatedAt: base.Add(time.Hour)})
		all, err := store.List(context.Background())
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 2 || all[0].Name != "New" || all[1].Name != "Old" {
			t.Fatalf("unexpected list order %+v", all)
		}
	})

	t.Run("CanceledContext", func(t *testing.T) {
		store := newStore(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := store.Insert(ctx, domain.Record{Name: "Rex", MotherName: "Luna", FatherName: "Max"}); !errors.Is(err, domain.ErrStoreUnavailable) {
			t.Fatalf("expected ErrStoreUnavailable for canceled insert, got %v", err)
		}
		all, err := store.List(context.Background())
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(all) != 0 {
			t.Fatalf("canceled insert must not write, got %+v", all)
		}
	})
}

func mustInsert(t *testing.T, store domain.RecordStore, r domain.Record) string {
	t.Helper()
	id, err := store.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("insert %s: %v", r.Name, err)
	}
	return id
}
