package presto

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

func init() {
	sql.Register("presto", &prestoDriver{})
}

type prestoDriver struct{}

var _ driver.Driver = (*prestoDriver)(nil)
var _ driver.DriverContext = (*prestoDriver)(nil)

func (d *prestoDriver) Open(dsn string) (driver.Conn, error) {
	connector, err := NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	return connector.Connect(context.Background())
}

func (d *prestoDriver) OpenConnector(dsn string) (driver.Connector, error) {
	return NewConnector(dsn)
}

// ConnectorOption configures a connector created by NewConnector.
type ConnectorOption func(*prestoConnector)

// WithSessionSetup registers fn to run on the session of every new connection,
// after the DSN settings are applied. Authentication schemes not covered by
// the DSN can install headers here through Session.RequestOptions.
func WithSessionSetup(fn func(*Session)) ConnectorOption {
	return func(c *prestoConnector) {
		c.sessionSetup = fn
	}
}

// prestoConnector shares one Client between its connections; each connection
// gets its own Session.
type prestoConnector struct {
	cfg          *dsnConfig
	client       *Client
	once         sync.Once
	err          error
	sessionSetup func(*Session)
}

var _ driver.Connector = (*prestoConnector)(nil)

// NewConnector creates a connector for sql.OpenDB from a DSN.
func NewConnector(dsn string, opts ...ConnectorOption) (driver.Connector, error) {
	cfg, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	c := &prestoConnector{cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *prestoConnector) initClient() {
	c.client, c.err = NewClient(c.cfg.serverURL())
	if c.err != nil {
		return
	}
	c.client.IsTrino(c.cfg.isTrino)

	tlsCfg, err := c.cfg.buildTLSConfig()
	if err != nil {
		c.err = fmt.Errorf("presto: %w", err)
		return
	}
	if tlsCfg != nil {
		c.client.TLSConfig(tlsCfg)
	}
	log.Debug().Str("server", c.cfg.serverURL()).Bool("trino", c.cfg.isTrino).Msg("initialized driver client")
}

func (c *prestoConnector) Connect(ctx context.Context) (driver.Conn, error) {
	c.once.Do(c.initClient)
	if c.err != nil {
		return nil, c.err
	}

	cfg := c.cfg
	session := c.client.NewSession()
	switch {
	case cfg.user != "" && cfg.password != "":
		session.UserPassword(cfg.user, cfg.password)
	case cfg.user != "":
		session.User(cfg.user)
	}
	if cfg.catalog != "" {
		session.Catalog(cfg.catalog)
	}
	if cfg.schema != "" {
		session.Schema(cfg.schema)
	}
	if cfg.timezone != "" {
		session.TimeZone(cfg.timezone)
	}
	if cfg.clientInfo != "" {
		session.ClientInfo(cfg.clientInfo)
	}
	if cfg.source != "" {
		session.ClientInfo(cfg.source)
	}
	if len(cfg.clientTags) > 0 {
		session.ClientTags(cfg.clientTags...)
	}
	for k, v := range cfg.sessionProps {
		session.SessionParam(k, v)
	}

	if c.sessionSetup != nil {
		c.sessionSetup(session)
	}
	return &prestoConn{session: session}, nil
}

func (c *prestoConnector) Driver() driver.Driver {
	return &prestoDriver{}
}

type prestoConn struct {
	session *Session
	closed  bool
}

var _ driver.Conn = (*prestoConn)(nil)
var _ driver.QueryerContext = (*prestoConn)(nil)
var _ driver.ExecerContext = (*prestoConn)(nil)
var _ driver.ConnBeginTx = (*prestoConn)(nil)
var _ driver.NamedValueChecker = (*prestoConn)(nil)

func (c *prestoConn) Prepare(query string) (driver.Stmt, error) {
	return &prestoStmt{conn: c, query: query}, nil
}

func (c *prestoConn) Close() error {
	c.closed = true
	return nil
}

func (c *prestoConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// prestoIsolationLevel maps a database/sql isolation level to the name used by
// START TRANSACTION.
func prestoIsolationLevel(level sql.IsolationLevel) (string, error) {
	switch level {
	case sql.LevelReadUncommitted:
		return "READ UNCOMMITTED", nil
	case sql.LevelReadCommitted:
		return "READ COMMITTED", nil
	case sql.LevelRepeatableRead:
		return "REPEATABLE READ", nil
	case sql.LevelSerializable:
		return "SERIALIZABLE", nil
	}
	return "", fmt.Errorf("presto: isolation level %s is not supported", level)
}

func (c *prestoConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	var modes []string
	if level := sql.IsolationLevel(opts.Isolation); level != sql.LevelDefault {
		name, err := prestoIsolationLevel(level)
		if err != nil {
			return nil, err
		}
		modes = append(modes, "ISOLATION LEVEL "+name)
	}
	if opts.ReadOnly {
		modes = append(modes, "READ ONLY")
	}

	stmt := "START TRANSACTION"
	if len(modes) > 0 {
		stmt += " " + strings.Join(modes, ", ")
	}
	if _, err := c.execDirect(ctx, stmt); err != nil {
		return nil, fmt.Errorf("presto: failed to start transaction: %w", err)
	}
	return &prestoTx{conn: c}, nil
}

func (c *prestoConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	interpolated, err := interpolateParams(query, namedToPositional(args))
	if err != nil {
		return nil, err
	}

	qr, _, err := c.session.Query(ctx, interpolated)
	if err != nil {
		return nil, err
	}

	// Skip the empty batches sent while the query is queued.
	for len(qr.Data) == 0 && qr.HasMoreBatch() {
		if err := qr.FetchNextBatch(ctx); err != nil {
			return nil, err
		}
	}
	return newPrestoRows(ctx, qr)
}

func (c *prestoConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	interpolated, err := interpolateParams(query, namedToPositional(args))
	if err != nil {
		return nil, err
	}
	return c.execDirect(ctx, interpolated)
}

// execDirect runs query to completion and reports its update count.
func (c *prestoConn) execDirect(ctx context.Context, query string) (driver.Result, error) {
	qr, _, err := c.session.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	for qr.HasMoreBatch() {
		if err := qr.FetchNextBatch(ctx); err != nil {
			return nil, err
		}
	}
	return &prestoResult{updateCount: qr.UpdateCount}, nil
}

// CheckNamedValue keeps time.Duration intact so it renders as an interval
// literal instead of being converted to int64 nanoseconds.
func (c *prestoConn) CheckNamedValue(nv *driver.NamedValue) error {
	if _, ok := nv.Value.(time.Duration); ok {
		return nil
	}
	v, err := driver.DefaultParameterConverter.ConvertValue(nv.Value)
	if err != nil {
		return err
	}
	nv.Value = v
	return nil
}

func namedToPositional(args []driver.NamedValue) []driver.Value {
	positional := make([]driver.Value, len(args))
	for i, arg := range args {
		positional[i] = arg.Value
	}
	return positional
}

type prestoResult struct {
	updateCount *int64
}

var _ driver.Result = (*prestoResult)(nil)

func (r *prestoResult) LastInsertId() (int64, error) {
	return 0, fmt.Errorf("presto: LastInsertId is not supported")
}

func (r *prestoResult) RowsAffected() (int64, error) {
	if r.updateCount == nil {
		return 0, nil
	}
	return *r.updateCount, nil
}

// prestoStmt interpolates its arguments client side; nothing is prepared on
// the server.
type prestoStmt struct {
	conn  *prestoConn
	query string
}

var _ driver.Stmt = (*prestoStmt)(nil)
var _ driver.StmtQueryContext = (*prestoStmt)(nil)
var _ driver.StmtExecContext = (*prestoStmt)(nil)

func (s *prestoStmt) Close() error {
	return nil
}

// NumInput returns -1: placeholders are counted during interpolation.
func (s *prestoStmt) NumInput() int {
	return -1
}

func (s *prestoStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), namedValues(args))
}

func (s *prestoStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), namedValues(args))
}

func (s *prestoStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *prestoStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

func namedValues(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

type prestoTx struct {
	conn *prestoConn
}

var _ driver.Tx = (*prestoTx)(nil)

func (tx *prestoTx) Commit() error {
	_, err := tx.conn.execDirect(context.Background(), "COMMIT")
	return err
}

func (tx *prestoTx) Rollback() error {
	_, err := tx.conn.execDirect(context.Background(), "ROLLBACK")
	return err
}
