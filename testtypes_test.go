package svcgraph

import (
	"context"
	"sync"
	"sync/atomic"
)

type testDB struct {
	dsn    string
	closed atomic.Bool
}

func (d *testDB) Close() error {
	d.closed.Store(true)
	return nil
}

func (d *testDB) IsClosed() bool {
	return d.closed.Load()
}

type testLogger interface {
	Log(msg string)
}

type memLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *memLogger) Log(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, msg)
}

func (l *memLogger) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

type testRepo struct {
	db  *testDB
	log testLogger
}

func (r *testRepo) Find(ctx context.Context, id string) (string, error) {
	r.log.Log("find " + id)
	return r.db.dsn + "/" + id, nil
}

type testRequest struct {
	repo *testRepo
	id   string
	n    int
}

// closeRecorder records the order in which values are closed.
type closeRecorder struct {
	mu    sync.Mutex
	order []string
}

func (r *closeRecorder) add(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *closeRecorder) closed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type recordedCloser struct {
	name string
	rec  *closeRecorder
	err  error
}

func (c *recordedCloser) Close() error {
	c.rec.add(c.name)
	return c.err
}

func newTestDB() *testDB {
	return &testDB{dsn: "mem://test"}
}

func newTestRepo(db *testDB, log testLogger) *testRepo {
	return &testRepo{db: db, log: log}
}

// loopLogger logs through a repository, which itself wants a logger.
type loopLogger struct {
	repo *testRepo
}

func (l *loopLogger) Log(msg string) {}
