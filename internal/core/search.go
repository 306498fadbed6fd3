package core

import (
	"context"
	"errors"
	"strings"

	"epibot/internal/session"
	"epibot/pkg/domain"
)

func (s *Service) startSearch(_ context.Context, sess *session.Session) (Reply, error) {
	sess.BeginSearch()
	return reply(renderSearchPrompt()), nil
}

// searchText runs a query. Text received while browsing results starts a new
// search with that text.
func (s *Service) searchText(ctx context.Context, sess *session.Session, text string) (Reply, error) {
	sr := sess.Search
	query := strings.TrimSpace(text)
	if query == "" {
		sr.Step = session.SearchAwaitingQuery
		verr := domain.ValidationError{Field: domain.FieldName, Reason: reasonEmptyQuery}
		return reply(notice(validationText(verr)), renderSearchPrompt()), verr
	}

	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	results, err := s.records.SearchByName(storeCtx, query, s.searchLimit)
	if err != nil {
		return reply(notice(unavailableText)), err
	}
	sr.Query = query
	sr.Results = results

	switch len(results) {
	case 0:
		sr.Step = session.SearchNoMatches
		return reply(renderNoMatches(query)), nil
	case 1:
		record, err := s.records.Get(storeCtx, results[0].ID)
		if errors.Is(err, domain.ErrNotFound) {
			sr.Step = session.SearchNoMatches
			sr.Results = nil
			return reply(notice(notFoundText), renderNoMatches(query)), err
		}
		if err != nil {
			return reply(notice(unavailableText)), err
		}
		sr.Step = session.SearchDetail
		return reply(renderDetail(record, false)), nil
	}
	sr.Step = session.SearchResults
	return reply(renderResults(results)), nil
}

func (s *Service) searchButton(ctx context.Context, sess *session.Session, id string) (Reply, error) {
	sr := sess.Search
	switch {
	case id == ActSearchBack:
		sess.Reset()
		return reply(renderMenu(welcomeText)), nil
	case id == ActSearchRetry:
		sr.Step = session.SearchAwaitingQuery
		return reply(renderSearchPrompt()), nil
	case id == ActSearchResults:
		if len(sr.Results) == 0 {
			sr.Step = session.SearchAwaitingQuery
			return reply(renderSearchPrompt()), nil
		}
		sr.Step = session.SearchResults
		return reply(renderResults(sr.Results)), nil
	case strings.HasPrefix(id, ActSearchOpenPrefix):
		return s.openResult(ctx, sr, strings.TrimPrefix(id, ActSearchOpenPrefix))
	}
	return Reply{}, nil
}

// openResult shows one record from the stored list. Ids that are not part of
// the latest search are ignored.
func (s *Service) openResult(ctx context.Context, sr *session.Search, id string) (Reply, error) {
	known := false
	for _, r := range sr.Results {
		if r.ID == id {
			known = true
			break
		}
	}
	if !known {
		return Reply{}, nil
	}
	storeCtx, cancel := s.storeContext(ctx)
	defer cancel()
	record, err := s.records.Get(storeCtx, id)
	if errors.Is(err, domain.ErrNotFound) {
		sr.Step = session.SearchResults
		return reply(notice(notFoundText), renderResults(sr.Results)), err
	}
	if err != nil {
		return reply(notice(unavailableText)), err
	}
	sr.Step = session.SearchDetail
	return reply(renderDetail(record, len(sr.Results) > 1)), nil
}
