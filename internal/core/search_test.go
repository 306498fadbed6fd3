package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"epibot/internal/session"
	"epibot/pkg/domain"
)

func searchState(t *testing.T, h *harness) *session.Search {
	t.Helper()
	sess, ok := h.svc.Sessions().Get(testUser)
	if !ok || sess.Search == nil {
		t.Fatalf("expected an active search")
	}
	return sess.Search
}

func TestSearchSubstringNewestFirstAndBackToResults(t *testing.T) {
	h := newHarness(t)
	ids := h.seed("Rex", "Fiore", "Luna")
	rexID, fioreID := ids[0], ids[1]

	h.must(h.svc.StartSearch(context.Background(), testUser))
	r := h.must(h.text("re"))
	sr := searchState(t, h)
	if sr.Step != session.SearchResults {
		t.Fatalf("expected results, got %s", sr.Step)
	}
	gotIDs := []string{sr.Results[0].ID, sr.Results[1].ID}
	if diff := cmp.Diff([]string{fioreID, rexID}, gotIDs); diff != "" {
		t.Fatalf("expected newest first (-want +got):\n%s", diff)
	}
	list := r.Last()
	if !strings.Contains(list.Text, "1. Fiore (Luna × Max)") {
		t.Fatalf("unexpected list text %q", list.Text)
	}
	_, searches, _ := h.store.counts()

	detail := h.must(h.press(OpenResult(fioreID)))
	if !strings.Contains(detail.Last().Text, "Name: Fiore") {
		t.Fatalf("expected Fiore detail, got %q", detail.Last().Text)
	}
	if diff := cmp.Diff([]string{ActSearchResults, ActSearchBack}, actionIDs(detail.Last())); diff != "" {
		t.Fatalf("detail actions (-want +got):\n%s", diff)
	}

	back := h.must(h.press(ActSearchResults))
	if diff := cmp.Diff(list, back.Last()); diff != "" {
		t.Fatalf("results list changed (-want +got):\n%s", diff)
	}
	if _, after, _ := h.store.counts(); after != searches {
		t.Fatalf("back to results must not query the store again")
	}
}

func TestSearchSingleMatchOpensDetail(t *testing.T) {
	h := newHarness(t)
	h.seed("Rex", "Luna")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	r := h.must(h.text("REX"))
	if searchState(t, h).Step != session.SearchDetail {
		t.Fatalf("single match must open the record")
	}
	if diff := cmp.Diff([]string{ActSearchRetry, ActSearchBack}, actionIDs(r.Last())); diff != "" {
		t.Fatalf("detail actions (-want +got):\n%s", diff)
	}
}

func TestSearchNoMatchesAndRetry(t *testing.T) {
	h := newHarness(t)
	h.seed("Rex")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	r := h.must(h.text("zzz"))
	if searchState(t, h).Step != session.SearchNoMatches {
		t.Fatalf("expected no_matches")
	}
	if !strings.Contains(r.Last().Text, `"zzz"`) {
		t.Fatalf("expected query echoed, got %q", r.Last().Text)
	}
	h.must(h.press(ActSearchRetry))
	if searchState(t, h).Step != session.SearchAwaitingQuery {
		t.Fatalf("retry must await a new query")
	}
	h.must(h.press(ActSearchBack))
	if _, ok := h.svc.Sessions().Get(testUser); ok {
		t.Fatalf("back must end the search")
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	h := newHarness(t)
	h.must(h.svc.StartSearch(context.Background(), testUser))
	r, err := h.text("   ")
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !containsText(r, emptyQueryText) {
		t.Fatalf("expected empty query notice, got %+v", r)
	}
	if _, searches, _ := h.store.counts(); searches != 0 {
		t.Fatalf("empty query must not reach the store")
	}
}

func TestSearchOpenUnknownIDIgnored(t *testing.T) {
	h := newHarness(t)
	h.seed("Rex", "Rexa")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	h.must(h.text("rex"))
	if r := h.must(h.press(OpenResult("not-in-list"))); !r.Empty() {
		t.Fatalf("ids outside the result list must be ignored, got %+v", r)
	}
	if _, _, gets := h.store.counts(); gets != 0 {
		t.Fatalf("ignored ids must not reach the store")
	}
}

func TestSearchOpenDeletedRecord(t *testing.T) {
	h := newHarness(t)
	ids := h.seed("Rex", "Rexa")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	h.must(h.text("rex"))
	if _, err := h.mem.DeleteByName(context.Background(), "Rexa"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	r, err := h.press(OpenResult(ids[1]))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !containsText(r, notFoundText) {
		t.Fatalf("expected not found notice, got %+v", r)
	}
	if searchState(t, h).Step != session.SearchResults {
		t.Fatalf("list must stay visible")
	}
}

func TestSearchStoreFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.seed("Rex")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	h.store.failOn("search", true)
	r, err := h.text("rex")
	if Classify(err) != OutcomeUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if !containsText(r, unavailableText) {
		t.Fatalf("expected unavailable notice, got %+v", r)
	}
	sr := searchState(t, h)
	if sr.Step != session.SearchAwaitingQuery || sr.Query != "" {
		t.Fatalf("failed search must not change the session: %+v", sr)
	}
}

func TestSearchLimitApplied(t *testing.T) {
	h := newHarness(t, WithSearchLimit(2))
	h.seed("Rex", "Rexa", "Rexo")
	h.must(h.svc.StartSearch(context.Background(), testUser))
	h.must(h.text("rex"))
	if got := len(searchState(t, h).Results); got != 2 {
		t.Fatalf("expected 2 results, got %d", got)
	}
}
