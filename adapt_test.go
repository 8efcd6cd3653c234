package svcgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UserLookup func(ctx context.Context, id string) (string, error)

func lookupUser(ctx context.Context, repo *testRepo, id string) (string, error) {
	return repo.Find(ctx, id)
}

func newAdaptContainer(t *testing.T) (*Container, *Definition[*memLogger]) {
	db := Single[*testDB](newTestDB)
	log := Single[*memLogger](func() *memLogger { return &memLogger{} })
	logIface := Abstract[testLogger](WithDefault(log))
	repo := Single[*testRepo](newTestRepo, DependsOn(db, logIface))

	c := New()
	require.NoError(t, c.Register(repo))
	return c, log
}

func TestAdapt(t *testing.T) {
	c, log := newAdaptContainer(t)
	ctx := context.Background()

	lookup, err := Adapt[UserLookup](c, lookupUser)
	require.NoError(t, err)

	user, err := lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "mem://test/42", user)
	assert.Equal(t, []string{"find 42"}, Get(ctx, c, log).Lines())
}

func TestAdapt_WithoutContext(t *testing.T) {
	c, _ := newAdaptContainer(t)

	lookup, err := Adapt[func(string) string](c, func(repo *testRepo, id string) string {
		return repo.db.dsn + "#" + id
	})
	require.NoError(t, err)
	assert.Equal(t, "mem://test#7", lookup("7"))
}

func TestAdapt_NothingInjected(t *testing.T) {
	c, _ := newAdaptContainer(t)

	double, err := Adapt[func(context.Context, int) int](c, func(ctx context.Context, n int) int {
		return n * 2
	})
	require.NoError(t, err)
	assert.Equal(t, 42, double(context.Background(), 21))
}

func TestAdapt_ResolveFailure(t *testing.T) {
	boom := errors.New("boom")
	broken := Single[*testRepo](func() (*testRepo, error) { return nil, boom })

	c := New()
	require.NoError(t, c.Register(broken))

	lookup, err := Adapt[UserLookup](c, lookupUser)
	require.NoError(t, err)

	_, err = lookup(context.Background(), "42")
	assert.ErrorIs(t, err, boom)

	plain, err := Adapt[func(string) string](c, func(repo *testRepo, id string) string { return id })
	require.NoError(t, err)
	assert.Panics(t, func() { plain("42") })
}

func TestAdapt_SignatureErrors(t *testing.T) {
	c, _ := newAdaptContainer(t)

	_, err := Adapt[int](c, lookupUser)
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = Adapt[UserLookup](c, "lookupUser")
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = Adapt[func(context.Context, string) string](c, lookupUser)
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = Adapt[func(context.Context, string) (int, error)](c, lookupUser)
	assert.ErrorIs(t, err, ErrInvalidFunction)

	_, err = Adapt[func(context.Context, int) (string, error)](c, lookupUser)
	assert.ErrorIs(t, err, ErrArgumentMismatch)

	_, err = Adapt[func(context.Context, *testRepo, string, string) (string, error)](c, lookupUser)
	assert.ErrorIs(t, err, ErrArgumentMismatch)

	_, err = Adapt[UserLookup](c, func(ctx context.Context, req *testRequest, id string) (string, error) {
		return "", nil
	})
	assert.ErrorIs(t, err, ErrServiceNotFound)
}
