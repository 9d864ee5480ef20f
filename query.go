package presto

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// requestQueryResults sends req and decodes the body as a statement response.
// A query failure reported in the body is returned as a *QueryError together
// with the results.
func (s *Session) requestQueryResults(ctx context.Context, req *http.Request) (*QueryResults, *http.Response, error) {
	qr := new(QueryResults)
	resp, err := s.Do(ctx, req, qr)
	if err != nil {
		return nil, resp, err
	}
	qr.session = s
	if qr.Error != nil {
		return qr, resp, qr.Error
	}
	return qr, resp, nil
}

// Query submits a statement. The returned results hold the first batch; use
// FetchNextBatch or Drain on them for the rest.
//
//	results, _, err := session.Query(ctx, "SELECT * FROM orders LIMIT 100")
func (s *Session) Query(ctx context.Context, query string, opts ...RequestOption) (*QueryResults, *http.Response, error) {
	req, err := s.NewRequest("POST", "v1/statement", query, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s.requestQueryResults(ctx, req)
}

// QueryWithPreMintedID submits a statement under a caller-chosen query ID.
// An empty queryId behaves like Query.
func (s *Session) QueryWithPreMintedID(ctx context.Context, query, queryId, slug string, opts ...RequestOption) (*QueryResults, *http.Response, error) {
	if queryId == "" {
		return s.Query(ctx, query, opts...)
	}
	req, err := s.NewRequest("PUT", fmt.Sprintf("v1/statement/%s?slug=%s", url.PathEscape(queryId), url.QueryEscape(slug)), query, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s.requestQueryResults(ctx, req)
}

// FetchNextBatch requests the batch at nextUri.
func (s *Session) FetchNextBatch(ctx context.Context, nextUri string, opts ...RequestOption) (*QueryResults, *http.Response, error) {
	req, err := s.NewRequest("GET", nextUri, nil, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s.requestQueryResults(ctx, req)
}

// CancelQuery cancels the query owning nextUri.
func (s *Session) CancelQuery(ctx context.Context, nextUri string, opts ...RequestOption) (*QueryResults, *http.Response, error) {
	req, err := s.NewRequest("DELETE", nextUri, nil, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s.requestQueryResults(ctx, req)
}
