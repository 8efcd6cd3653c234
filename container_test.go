package svcgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFork_SeesParentInstances(t *testing.T) {
	db := Single[*testDB](newTestDB)
	repo := Single[*testRepo](func(db *testDB) *testRepo { return &testRepo{db: db} }, DependsOn(db))

	parent := New()
	ctx := context.Background()
	parentDB := Get(ctx, parent, db)

	child := parent.Fork()
	assert.True(t, child.Contains(db))
	assert.Same(t, parentDB, Get(ctx, child, db))

	childRepo := Get(ctx, child, repo)
	assert.Same(t, parentDB, childRepo.db)
	assert.True(t, child.Contains(repo))
	assert.False(t, parent.Contains(repo))

	assert.NotSame(t, childRepo, Get(ctx, parent, repo))
}

func TestFork_BindingsShadowParent(t *testing.T) {
	log := Abstract[testLogger]()
	rootLog := Single[*memLogger](func() *memLogger { return &memLogger{} }, Named("root-log"))
	testLog := Single[*memLogger](func() *memLogger { return &memLogger{} }, Named("test-log"))

	root := New()
	require.NoError(t, Bind(root, log, rootLog))

	inherits := root.Fork()
	assert.Same(t, Get(context.Background(), root, rootLog), Get(context.Background(), inherits, log))

	shadow := root.Fork()
	require.NoError(t, Bind(shadow, log, testLog))
	assert.Same(t, Get(context.Background(), shadow, testLog), Get(context.Background(), shadow, log))
	assert.Same(t, Get(context.Background(), root, rootLog), Get(context.Background(), root, log))
}

func TestFork_ShutdownLeavesParentAlone(t *testing.T) {
	parentDB := Single[*testDB](newTestDB, Named("parent-db"))
	childDB := Single[*testDB](newTestDB, Named("child-db"))

	parent := New()
	ctx := context.Background()
	p := Get(ctx, parent, parentDB)

	child := parent.Fork()
	ch := Get(ctx, child, childDB)
	assert.Same(t, p, Get(ctx, child, parentDB))

	require.NoError(t, child.Shutdown(ctx))
	assert.True(t, ch.IsClosed())
	assert.False(t, p.IsClosed())

	_, err := GetWithError(ctx, parent, parentDB)
	assert.NoError(t, err)
}

func TestShutdown_ReverseConstructionOrder(t *testing.T) {
	rec := &closeRecorder{}
	first := Single[*recordedCloser](func() *recordedCloser {
		return &recordedCloser{name: "first", rec: rec}
	}, Named("first"))
	second := Single[*recordedCloser](func(f *recordedCloser) *recordedCloser {
		return &recordedCloser{name: "second", rec: rec}
	}, DependsOn(first), Named("second"))
	third := Single[*recordedCloser](func(s *recordedCloser) *recordedCloser {
		return &recordedCloser{name: "third", rec: rec}
	}, DependsOn(second), Named("third"))

	c := New()
	Get(context.Background(), c, third)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"third", "second", "first"}, rec.closed())

	assert.ErrorIs(t, c.Shutdown(context.Background()), ErrAlreadyShutdown)
}

func TestShutdown_AggregatesErrors(t *testing.T) {
	rec := &closeRecorder{}
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := Single[*recordedCloser](func() *recordedCloser {
		return &recordedCloser{name: "a", rec: rec, err: errA}
	}, Named("a"))
	b := Single[*recordedCloser](func() *recordedCloser {
		return &recordedCloser{name: "b", rec: rec, err: errB}
	}, Named("b"))

	logger, hook := test.NewNullLogger()
	c := New(WithLogger(logger))
	Get(context.Background(), c, a)
	Get(context.Background(), c, b)

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)

	require.Len(t, hook.AllEntries(), 2)
	for _, entry := range hook.AllEntries() {
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "cleanup failed", entry.Message)
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	rec := &closeRecorder{}
	a := Single[*recordedCloser](func() *recordedCloser {
		return &recordedCloser{name: "a", rec: rec}
	})

	c := New()
	Get(context.Background(), c, a)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Shutdown(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.closed())
}

func TestShutdown_CleanupFunc(t *testing.T) {
	var cleaned []string
	db := Single[*testDB](newTestDB)

	c := New(WithCleanupFunc[*testDB](func(db *testDB) {
		cleaned = append(cleaned, db.dsn)
	}))
	v := Get(context.Background(), c, db)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"mem://test"}, cleaned)
	assert.False(t, v.IsClosed())
}

func TestInstance(t *testing.T) {
	db := Single[*testDB](func() *testDB {
		panic("constructor must not run")
	})
	repo := Single[*testRepo](func(db *testDB) *testRepo { return &testRepo{db: db} }, DependsOn(db))

	c := New()
	given := &testDB{dsn: "given"}
	require.NoError(t, Instance(c, db, given))
	assert.True(t, c.Contains(db))
	assert.Same(t, given, Get(context.Background(), c, repo).db)

	assert.ErrorIs(t, Instance(c, db, &testDB{}), ErrAlreadyConstructed)

	transient := Transient[*testDB](newTestDB)
	assert.ErrorIs(t, Instance(c, transient, given), ErrKindMismatch)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, given.IsClosed())
	assert.ErrorIs(t, Instance(c, db, given), ErrShutdown)
}

func TestInstance_Overrides(t *testing.T) {
	db := Single[*testDB](newTestDB)

	c := New(WithOverrides())
	first := &testDB{dsn: "first"}
	second := &testDB{dsn: "second"}
	require.NoError(t, Instance(c, db, first))
	require.NoError(t, Instance(c, db, second))
	assert.Same(t, second, Get(context.Background(), c, db))

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())

	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, second.IsClosed())
}

func TestSharedInstance_Overrides(t *testing.T) {
	pool := Shared[*testDB](newTestDB)

	logger, hook := test.NewNullLogger()
	c := New(WithOverrides(), WithLogger(logger))
	first := &testDB{dsn: "first"}
	second := &testDB{dsn: "second"}
	third := &testDB{dsn: "third"}

	require.NoError(t, SharedInstance(c, pool, first))
	require.NoError(t, SharedInstance(c, pool, second))
	assert.True(t, first.IsClosed())

	held := Get(context.Background(), c, pool)
	require.NoError(t, SharedInstance(c, pool, third))
	assert.False(t, second.IsClosed())
	require.NoError(t, held.Release())
	assert.True(t, second.IsClosed())

	require.NoError(t, c.Shutdown(context.Background()))
	assert.True(t, third.IsClosed())
	assert.Empty(t, hook.AllEntries())
}

func TestInstance_OverrideCleanupFailureLogged(t *testing.T) {
	rec := &closeRecorder{}
	svc := Single[*recordedCloser](func() *recordedCloser { return nil }, Named("closer"))

	logger, hook := test.NewNullLogger()
	c := New(WithOverrides(), WithLogger(logger))
	require.NoError(t, Instance(c, svc, &recordedCloser{name: "old", rec: rec, err: errors.New("stuck")}))
	require.NoError(t, Instance(c, svc, &recordedCloser{name: "new", rec: rec}))

	assert.Equal(t, []string{"old"}, rec.closed())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "cleanup of replaced instance failed", hook.LastEntry().Message)
	assert.Equal(t, "closer", hook.LastEntry().Data["service"])
}

func TestSharedInstance(t *testing.T) {
	pool := Shared[*testDB](func() *testDB {
		panic("constructor must not run")
	})

	c := New()
	given := &testDB{dsn: "pool"}
	require.NoError(t, SharedInstance(c, pool, given))

	ref := Get(context.Background(), c, pool)
	assert.Same(t, given, ref.Get())
	assert.Equal(t, int64(2), ref.Count())

	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, given.IsClosed())
	require.NoError(t, ref.Release())
	assert.True(t, given.IsClosed())

	abstract := AbstractShared[*testDB]()
	assert.ErrorIs(t, SharedInstance(New(), abstract, given), ErrKindMismatch)
}

func TestRegister(t *testing.T) {
	db := Single[*testDB](newTestDB, Named("db"))
	otherDB := Single[*testDB](newTestDB, Named("other-db"))

	c := New()
	require.NoError(t, c.Register(db))
	require.NoError(t, c.Register(db))

	err := c.Register(otherDB)
	assert.ErrorIs(t, err, ErrDuplicateService)

	var missing *Definition[*testDB]
	assert.Error(t, c.Register(missing))

	loose := New(WithOverrides())
	require.NoError(t, loose.Register(db, otherDB))
	svc, err := loose.lookupType(typeOf[*testDB]())
	require.NoError(t, err)
	assert.Equal(t, "other-db", svc.name)
}

func TestBind_Logged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	log := Abstract[testLogger](Named("log"))
	mem := Single[*memLogger](func() *memLogger { return &memLogger{} }, Named("mem"))

	c := New(WithLogger(logger))
	require.NoError(t, Bind(c, log, mem))
	Get(context.Background(), c, log)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "bound abstract service", entries[0].Message)
	assert.Equal(t, "log", entries[0].Data["abstract"])
	assert.Equal(t, "mem", entries[0].Data["concrete"])
	assert.Equal(t, "constructing service", entries[1].Message)
	assert.Equal(t, "mem", entries[1].Data["service"])
	assert.Equal(t, "single", entries[1].Data["kind"])
}

func TestRegister_ForkShadowsParentForInterfaces(t *testing.T) {
	rootLog := Single[*memLogger](func() *memLogger { return &memLogger{} }, Named("root-log"))
	testLog := Single[*memLogger](func() *memLogger { return &memLogger{} }, Named("test-log"))
	ctx := context.Background()

	root := New()
	require.NoError(t, root.Register(rootLog))
	child := root.Fork()
	require.NoError(t, child.Register(testLog))

	logWith := func(c *Container) testLogger {
		results, err := Invoke(ctx, c, func(l testLogger) testLogger { return l })
		require.NoError(t, err)
		return results[0].(testLogger)
	}
	assert.Same(t, Get(ctx, child, testLog), logWith(child))
	assert.Same(t, Get(ctx, root, rootLog), logWith(root))

	loose := New(WithOverrides())
	require.NoError(t, loose.Register(rootLog, testLog, rootLog))
	svc, err := loose.lookupType(typeOf[testLogger]())
	require.NoError(t, err)
	assert.Equal(t, "root-log", svc.name)

	other := Single[*loopLogger](func() *loopLogger { return &loopLogger{} }, Named("loop-log"))
	require.NoError(t, child.Register(other))
	_, err = child.lookupType(typeOf[testLogger]())
	assert.ErrorIs(t, err, ErrAmbiguousService)
}
