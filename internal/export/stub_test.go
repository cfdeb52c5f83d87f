package export

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

// stubConn is a database/sql connection that keeps the state table in a map.
type stubConn struct {
	execs      []string
	state      map[string][]byte
	failPing   bool
	failBegin  bool
	failCommit bool
	failBucket string
	committed  bool
}

var stubSeq atomic.Int64

func newStubDB() (*sql.DB, *stubConn) {
	conn := &stubConn{state: make(map[string][]byte)}
	name := fmt.Sprintf("stubexport%d", stubSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *stubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (c *stubConn) Close() error                        { return nil }
func (c *stubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *stubConn) Ping(context.Context) error {
	if c.failPing {
		return errors.New("ping fail")
	}
	return nil
}

func (c *stubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.failBegin {
		return nil, errors.New("begin fail")
	}
	return stubTx{conn: c}, nil
}

func (c *stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.execs = append(c.execs, query)
	if strings.HasPrefix(strings.TrimSpace(query), "INSERT INTO state") {
		bucket, _ := args[0].Value.(string)
		if bucket == c.failBucket {
			return nil, fmt.Errorf("exec fail for %s", bucket)
		}
		payload, _ := args[1].Value.([]byte)
		c.state[bucket] = payload
	}
	return driver.RowsAffected(1), nil
}

type stubTx struct{ conn *stubConn }

func (t stubTx) Commit() error {
	if t.conn.failCommit {
		return errors.New("commit fail")
	}
	t.conn.committed = true
	return nil
}

func (t stubTx) Rollback() error { return nil }
