// Package prestotest provides an in-process coordinator that serves canned
// results over the statement protocol, for tests of code built on presto.
package prestotest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prestoclient/presto-go"
	"github.com/rs/zerolog/log"
)

// QueryState is a stage of the query life cycle reported in StatementStats.State.
type QueryState string

const (
	QueryStateQueued    QueryState = "QUEUED"
	QueryStateRunning   QueryState = "RUNNING"
	QueryStateCancelled QueryState = "CANCELLED"
	QueryStateFinished  QueryState = "FINISHED"
	QueryStateFailed    QueryState = "FAILED"
)

func (qs QueryState) String() string {
	return string(qs)
}

// SignatureEncoding selects how column type signatures are written.
type SignatureEncoding int

const (
	// SignatureAsIs sends Column.TypeSignature unchanged. An empty signature
	// is derived from Column.Type first.
	SignatureAsIs SignatureEncoding = iota
	// SignatureOmitted sends an empty signature, leaving clients to parse
	// Column.Type.
	SignatureOmitted
	// SignatureLegacy rewrites nested signatures into typeArguments and
	// literalArguments with the old argument kind names.
	SignatureLegacy
)

func generateMockSlug() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// MockQueryTemplate is the canned result for one SQL text.
//
// Rows are spread over DataBatches consecutive responses of
// ceil(len(Data)/DataBatches) rows each, after QueueBatches responses without
// data. AddQuery caps DataBatches at the row count.
type MockQueryTemplate struct {
	SQL          string
	DataBatches  int
	QueueBatches int
	Columns      []presto.Column
	Data         [][]any
	Error        *presto.QueryError
	// Latency is spread evenly over all responses of the query.
	Latency   time.Duration
	Signature SignatureEncoding
}

// MockActiveQuery is one running instance of a template.
type MockActiveQuery struct {
	ID        string
	Template  *MockQueryTemplate
	State     QueryState
	QueuedFor int
}

// MockPrestoServer is an httptest server speaking the statement protocol.
type MockPrestoServer struct {
	server *httptest.Server

	templates     map[string]*MockQueryTemplate
	activeQueries map[string]*MockActiveQuery
	queriesMutex  sync.RWMutex

	defaultLatency time.Duration
	queryIDCounter atomic.Int64
	today          string
}

// NewMockPrestoServer starts a server. Call Close when done.
func NewMockPrestoServer() *MockPrestoServer {
	mock := &MockPrestoServer{
		templates:     make(map[string]*MockQueryTemplate),
		activeQueries: make(map[string]*MockActiveQuery),
		today:         time.Now().Format("20060102"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/statement", mock.handleNewQuery)
	mux.HandleFunc("PUT /v1/statement/{queryId}", mock.handleQueryWithPreMintedID)
	mux.HandleFunc("GET /v1/statement/{status}/{queryId}/{batchId}", mock.handleFetchNextBatch)
	mux.HandleFunc("DELETE /v1/statement/{status}/{queryId}/{batchId}", mock.handleCancelQuery)
	mock.server = httptest.NewServer(mux)
	return mock
}

// AddQuery registers tmpl for its SQL text.
func (m *MockPrestoServer) AddQuery(tmpl *MockQueryTemplate) {
	m.queriesMutex.Lock()
	defer m.queriesMutex.Unlock()

	tmpl.DataBatches = min(tmpl.DataBatches, len(tmpl.Data))
	tmpl.QueueBatches = max(tmpl.QueueBatches, 1)
	m.templates[tmpl.SQL] = tmpl
}

// SetDefaultLatency applies to templates without their own Latency.
func (m *MockPrestoServer) SetDefaultLatency(latency time.Duration) {
	m.defaultLatency = latency
}

func (m *MockPrestoServer) handleNewQuery(w http.ResponseWriter, r *http.Request) {
	m.startQuery(w, r, m.newQueryID())
}

func (m *MockPrestoServer) handleQueryWithPreMintedID(w http.ResponseWriter, r *http.Request) {
	m.startQuery(w, r, r.PathValue("queryId"))
}

// startQuery answers unknown SQL with a one-row varchar result.
func (m *MockPrestoServer) startQuery(w http.ResponseWriter, r *http.Request, queryID string) {
	body, _ := io.ReadAll(r.Body)
	sql := string(body)

	m.queriesMutex.Lock()
	template, exists := m.templates[sql]
	if !exists {
		template = &MockQueryTemplate{
			SQL:          sql,
			DataBatches:  1,
			QueueBatches: 1,
			Columns:      []presto.Column{{Name: "result", Type: "varchar"}},
			Data:         [][]any{{"Query template not found; default success"}},
		}
	}
	m.activeQueries[queryID] = &MockActiveQuery{ID: queryID, Template: template, State: QueryStateQueued}
	m.queriesMutex.Unlock()

	log.Debug().Str("query_id", queryID).Bool("template", exists).Msg("mock query started")
	m.sendQueryResponse(w, queryID, 0)
}

func (m *MockPrestoServer) handleFetchNextBatch(w http.ResponseWriter, r *http.Request) {
	batchID, _ := strconv.Atoi(r.PathValue("batchId"))
	m.sendQueryResponse(w, r.PathValue("queryId"), batchID)
}

func (m *MockPrestoServer) handleCancelQuery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("queryId")
	m.queriesMutex.Lock()
	if q, ok := m.activeQueries[id]; ok {
		q.State = QueryStateCancelled
	}
	m.queriesMutex.Unlock()
	m.sendQueryResponse(w, id, 0)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// sendQueryResponse answers poll batchID of a query. Batch 0 is repeated while
// the query is queued; batches 1..DataBatches carry rows.
func (m *MockPrestoServer) sendQueryResponse(w http.ResponseWriter, queryID string, batchID int) {
	m.queriesMutex.RLock()
	query, exists := m.activeQueries[queryID]
	if !exists {
		m.queriesMutex.RUnlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Query not found"})
		return
	}
	latency := m.defaultLatency
	if query.Template.Latency > 0 {
		latency = query.Template.Latency
	}
	dataBatchCount := query.Template.DataBatches
	queueBatchCount := query.Template.QueueBatches
	sleep := latency / time.Duration(dataBatchCount+queueBatchCount)
	m.queriesMutex.RUnlock()

	if sleep > 0 {
		time.Sleep(sleep)
	}

	m.queriesMutex.Lock()
	defer m.queriesMutex.Unlock()
	query, exists = m.activeQueries[queryID]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Query removed during processing"})
		return
	}

	if batchID == 0 {
		query.QueuedFor++
	}
	if query.QueuedFor >= queueBatchCount && query.State == QueryStateQueued {
		query.State = QueryStateRunning
	}
	hasMore := query.QueuedFor < queueBatchCount || batchID < dataBatchCount
	if !hasMore && query.State == QueryStateRunning {
		query.State = QueryStateFinished
	}

	tmpl := query.Template
	resp := presto.QueryResults{
		Id:      queryID,
		Columns: encodeColumns(tmpl.Columns, tmpl.Signature),
		Error:   tmpl.Error,
		Stats: presto.StatementStats{
			State:           string(query.State),
			Queued:          query.State == QueryStateQueued,
			Scheduled:       query.State != QueryStateQueued,
			TotalSplits:     dataBatchCount,
			CompletedSplits: min(batchID, dataBatchCount),
		},
	}

	if hasMore {
		nextBatch := batchID + 1
		if query.QueuedFor < queueBatchCount {
			nextBatch = 0
		}
		nextUri := fmt.Sprintf("%s/v1/statement/%s/%s/%d?slug=%s",
			m.server.URL, query.State, queryID, nextBatch, generateMockSlug())
		resp.NextUri = &nextUri
	}

	if batchID > 0 && dataBatchCount > 0 {
		rowsPerBatch := (len(tmpl.Data) + dataBatchCount - 1) / dataBatchCount
		start := (batchID - 1) * rowsPerBatch
		if start < len(tmpl.Data) {
			rows := tmpl.Data[start:min(start+rowsPerBatch, len(tmpl.Data))]
			resp.Data = make([]json.RawMessage, len(rows))
			for i, row := range rows {
				resp.Data[i], _ = json.Marshal(row)
			}
			resp.Stats.ProcessedRows = int64(start + len(rows))
		}
	}

	switch query.State {
	case QueryStateFinished, QueryStateCancelled, QueryStateFailed:
		delete(m.activeQueries, queryID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// encodeColumns fills in type signatures the way the template asks for.
func encodeColumns(columns []presto.Column, encoding SignatureEncoding) []presto.Column {
	if len(columns) == 0 {
		return nil
	}
	out := make([]presto.Column, len(columns))
	for i, col := range columns {
		sig := col.Signature()
		switch encoding {
		case SignatureOmitted:
			sig = presto.ClientTypeSignature{}
		case SignatureLegacy:
			sig = legacySignature(sig.Normalize())
		}
		out[i] = presto.Column{Name: col.Name, Type: col.Type, TypeSignature: sig}
	}
	return out
}

var legacyKindNames = map[presto.ParameterKind]presto.ParameterKind{
	presto.ParameterKindType:      "TYPE_SIGNATURE",
	presto.ParameterKindNamedType: "NAMED_TYPE_SIGNATURE",
	presto.ParameterKindLong:      "LONG_LITERAL",
}

// legacySignature moves nested types into TypeArguments and row field names
// into LiteralArguments. Arguments keep their payloads under the old kind
// names.
func legacySignature(sig presto.ClientTypeSignature) presto.ClientTypeSignature {
	out := presto.ClientTypeSignature{RawType: sig.RawType}
	for _, arg := range sig.Arguments {
		legacyArg := arg
		if name, ok := legacyKindNames[arg.Kind]; ok {
			legacyArg.Kind = name
		}
		switch {
		case arg.TypeSignature != nil:
			inner := legacySignature(*arg.TypeSignature)
			legacyArg.TypeSignature = &inner
			out.TypeArguments = append(out.TypeArguments, inner)
			out.LiteralArguments = append(out.LiteralArguments, nil)
		case arg.NamedTypeSignature != nil:
			inner := legacySignature(arg.NamedTypeSignature.TypeSignature)
			legacyArg.NamedTypeSignature = &presto.NamedTypeSignature{
				FieldName:     arg.NamedTypeSignature.FieldName,
				TypeSignature: inner,
			}
			out.TypeArguments = append(out.TypeArguments, inner)
			var name *string
			if arg.NamedTypeSignature.FieldName != nil {
				name = &arg.NamedTypeSignature.FieldName.Name
			}
			out.LiteralArguments = append(out.LiteralArguments, name)
		}
		out.Arguments = append(out.Arguments, legacyArg)
	}
	return out
}

func (m *MockPrestoServer) newQueryID() string {
	return fmt.Sprintf("%s_%d", m.today, m.queryIDCounter.Add(1))
}

// URL returns the base URL of the server.
func (m *MockPrestoServer) URL() string { return m.server.URL }

// Close shuts the server down.
func (m *MockPrestoServer) Close() { m.server.Close() }
