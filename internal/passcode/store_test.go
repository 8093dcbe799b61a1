package passcode

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/sequence"
)

type memRepo struct {
	mu   sync.Mutex
	rows map[uint64]model.Passcode
}

func newMemRepo() *memRepo { return &memRepo{rows: map[uint64]model.Passcode{}} }

func (m *memRepo) Upsert(_ context.Context, p model.Passcode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.AppID] = p
	return nil
}

func (m *memRepo) Get(_ context.Context, id uint64) (*model.Passcode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memRepo) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func newStore() (*Store, *memRepo) {
	repo := newMemRepo()
	return NewStore(repo, sequence.NewCodec(4)), repo
}

func TestStore_VerifyAfterUpsert(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	seq := []string{"cat.png", "dog.png", "bird.png"}

	require.NoError(t, s.Upsert(ctx, 1, "animals", seq, ""))

	ok, err := s.Verify(ctx, 1, seq)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, perm := range [][]string{
		{"cat.png", "bird.png", "dog.png"},
		{"dog.png", "cat.png", "bird.png"},
		{"bird.png", "dog.png", "cat.png"},
		{"cat.png", "dog.png"},
		{"cat.png", "dog.png", "bird.png", "cat.png"},
	} {
		ok, err := s.Verify(ctx, 1, perm)
		require.NoError(t, err)
		assert.False(t, ok, "%v must not verify", perm)
	}
}

func TestStore_SaltedDigests(t *testing.T) {
	s, repo := newStore()
	ctx := context.Background()
	seq := []string{"cat.png"}

	require.NoError(t, s.Upsert(ctx, 1, "animals", seq, ""))
	first := repo.rows[1].Digest
	require.NoError(t, s.Upsert(ctx, 1, "animals", seq, ""))
	second := repo.rows[1].Digest

	assert.NotEqual(t, first, second)
	assert.NotContains(t, second, "cat.png")
	for i := 0; i < 2; i++ {
		ok, err := s.Verify(ctx, 1, seq)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestStore_UpsertInvalidatesOld(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, 1, "animals", []string{"cat.png"}, ""))
	require.NoError(t, s.Upsert(ctx, 1, "animals", []string{"dog.png"}, "new"))

	ok, err := s.Verify(ctx, 1, []string{"cat.png"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Verify(ctx, 1, []string{"dog.png"})
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := s.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", p.Hint)
}

func TestStore_DeleteAndMissing(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, 1, "animals", []string{"cat.png"}, ""))
	require.NoError(t, s.Delete(ctx, 1))

	ok, err := s.Verify(ctx, 1, []string{"cat.png"})
	assert.ErrorIs(t, err, ErrNoPasscodeSet)
	assert.False(t, ok)

	_, err = s.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNoPasscodeSet)
}

func TestStore_UpsertRejectsEmpty(t *testing.T) {
	s, repo := newStore()
	err := s.Upsert(context.Background(), 1, "animals", nil, "")
	assert.ErrorIs(t, err, sequence.ErrInvalidSequence)
	assert.Empty(t, repo.rows)
}

func TestStore_NormalizationEquivalence(t *testing.T) {
	s, _ := newStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, 1, "animals", []string{"cat.png", "bird.png"}, ""))

	cases := map[string]struct {
		attempt []string
		want    bool
	}{
		"qualified":     {[]string{"animals/cat.png", "animals/bird.png"}, true},
		"bare":          {[]string{"cat.png", "bird.png"}, true},
		"mixed":         {[]string{"animals/cat.png", "bird.png"}, true},
		"reversed":      {[]string{"animals/bird.png", "animals/cat.png"}, false},
		"wrongCategory": {[]string{"cars/cat.png", "cars/bird.png"}, false},
		"malformed":     {[]string{"cat.png|bird.png"}, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			ok, err := s.Verify(ctx, 1, tc.attempt)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}
