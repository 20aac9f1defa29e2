package ideas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryan-buckman/ideaboard/internal/database"
	"github.com/bryan-buckman/ideaboard/internal/model"
)

var errBackend = errors.New("backend unavailable")

// faultyKV wraps a memory store and fails selected keys. It does not
// implement database.Batcher, so Vote takes the two-step path.
type faultyKV struct {
	mem     *database.Memory
	failGet map[string]error
	failSet map[string]error
}

func newFaultyKV() *faultyKV {
	return &faultyKV{
		mem:     database.NewMemory(),
		failGet: map[string]error{},
		failSet: map[string]error{},
	}
}

func (f *faultyKV) Close() error         { return nil }
func (f *faultyKV) DatabaseType() string { return "Faulty" }

func (f *faultyKV) Get(ctx context.Context, key string) (string, bool, error) {
	if err := f.failGet[key]; err != nil {
		return "", false, err
	}
	return f.mem.Get(ctx, key)
}

func (f *faultyKV) Set(ctx context.Context, key, value string) error {
	if err := f.failSet[key]; err != nil {
		return err
	}
	return f.mem.Set(ctx, key, value)
}

// faultyBatchKV adds an atomic SetMany that can be made to fail.
type faultyBatchKV struct {
	*faultyKV
	failBatch error
	batches   int
}

func (f *faultyBatchKV) SetMany(ctx context.Context, entries []database.Entry) error {
	f.batches++
	if f.failBatch != nil {
		return f.failBatch
	}
	return f.mem.SetMany(ctx, entries)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(kv database.Store, opts ...Option) *Store {
	return New(kv, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func testIdea(id string, rating int) model.Idea {
	return model.Idea{
		ID:          id,
		Name:        "Idea " + id,
		Tagline:     "t",
		Description: "d",
		Rating:      rating,
		CreatedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreateAndListInOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())

	want := []model.Idea{testIdea("a", 10), testIdea("b", 90), testIdea("c", 50)}
	for _, idea := range want {
		require.NoError(t, s.CreateIdea(ctx, idea))
	}

	got, err := s.ListIdeas(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	for _, idea := range got {
		assert.Zero(t, idea.Votes)
	}
}

func TestVoteScenario(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())

	idea := model.Idea{ID: "1", Name: "Foo", Tagline: "t", Description: "d", Rating: 80}
	require.NoError(t, s.CreateIdea(ctx, idea))

	got, err := s.ListIdeas(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Votes)

	recorded, err := s.Vote(ctx, "1")
	require.NoError(t, err)
	assert.True(t, recorded)

	got, _ = s.ListIdeas(ctx)
	assert.Equal(t, 1, got[0].Votes)
	assert.Equal(t, 80, got[0].Rating)

	recorded, err = s.Vote(ctx, "1")
	require.NoError(t, err)
	assert.False(t, recorded)

	got, _ = s.ListIdeas(ctx)
	assert.Equal(t, 1, got[0].Votes)

	votes, err := s.ListUserVotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, votes)
}

func TestVoteOnlyTouchesMatchingIdea(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))
	require.NoError(t, s.CreateIdea(ctx, testIdea("b", 2)))

	_, err := s.Vote(ctx, "b")
	require.NoError(t, err)

	got, _ := s.ListIdeas(ctx)
	assert.Equal(t, 0, got[0].Votes)
	assert.Equal(t, 1, got[1].Votes)
}

func TestVoteUnknownID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 40)))
	before, _ := s.ListIdeas(ctx)

	recorded, err := s.Vote(ctx, "ghost")
	require.NoError(t, err)
	assert.True(t, recorded)

	votes, _ := s.ListUserVotes(ctx)
	assert.Equal(t, []string{"ghost"}, votes)

	after, _ := s.ListIdeas(ctx)
	assert.Equal(t, before, after)
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())

	ideas, err := s.ListIdeas(ctx)
	require.NoError(t, err)
	assert.NotNil(t, ideas)
	assert.Empty(t, ideas)

	votes, err := s.ListUserVotes(ctx)
	require.NoError(t, err)
	assert.NotNil(t, votes)
	assert.Empty(t, votes)
}

func TestListIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))
	_, err := s.Vote(ctx, "a")
	require.NoError(t, err)

	first, _ := s.ListIdeas(ctx)
	second, _ := s.ListIdeas(ctx)
	assert.Equal(t, first, second)

	v1, _ := s.ListUserVotes(ctx)
	v2, _ := s.ListUserVotes(ctx)
	assert.Equal(t, v1, v2)
}

func TestCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))

	err := s.CreateIdea(ctx, testIdea("a", 2))
	require.ErrorIs(t, err, ErrDuplicateIdea)

	got, _ := s.ListIdeas(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Rating)
}

func TestPersistedLayout(t *testing.T) {
	ctx := context.Background()
	mem := database.NewMemory()
	s := newTestStore(mem)
	require.NoError(t, s.CreateIdea(ctx, testIdea("1", 80)))
	_, err := s.Vote(ctx, "1")
	require.NoError(t, err)

	raw, ok, err := mem.Get(ctx, model.KeyVotes)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["1"]`, raw)

	raw, ok, err = mem.Get(ctx, model.KeyIdeas)
	require.NoError(t, err)
	require.True(t, ok)
	var docs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "1", docs[0]["id"])
	assert.EqualValues(t, 1, docs[0]["votes"])
	assert.EqualValues(t, 80, docs[0]["rating"])
	assert.Equal(t, "2024-05-01T12:00:00Z", docs[0]["createdAt"])
}

func TestReadErrorPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("empty by default", func(t *testing.T) {
		kv := newFaultyKV()
		kv.failGet[model.KeyIdeas] = errBackend
		kv.failGet[model.KeyVotes] = errBackend
		s := newTestStore(kv)

		ideas, err := s.ListIdeas(ctx)
		assert.NoError(t, err)
		assert.Empty(t, ideas)

		votes, err := s.ListUserVotes(ctx)
		assert.NoError(t, err)
		assert.Empty(t, votes)
	})

	t.Run("propagate", func(t *testing.T) {
		kv := newFaultyKV()
		kv.failGet[model.KeyIdeas] = errBackend
		kv.failGet[model.KeyVotes] = errBackend
		s := newTestStore(kv, WithReadErrorPolicy(ReadErrorPropagate))

		_, err := s.ListIdeas(ctx)
		var serr *StorageError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "read", serr.Op)
		assert.Equal(t, model.KeyIdeas, serr.Key)
		assert.ErrorIs(t, err, errBackend)

		_, err = s.ListUserVotes(ctx)
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, model.KeyVotes, serr.Key)
	})
}

func TestCorruptDocument(t *testing.T) {
	ctx := context.Background()
	mem := database.NewMemory()
	require.NoError(t, mem.Set(ctx, model.KeyIdeas, "not json"))

	ideas, err := newTestStore(mem).ListIdeas(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ideas)

	_, err = newTestStore(mem, WithReadErrorPolicy(ReadErrorPropagate)).ListIdeas(ctx)
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "decode", serr.Op)
}

func TestCreateIdeaWriteFailure(t *testing.T) {
	ctx := context.Background()
	kv := newFaultyKV()
	kv.failSet[model.KeyIdeas] = errBackend
	s := newTestStore(kv)

	err := s.CreateIdea(ctx, testIdea("a", 1))
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "write", serr.Op)
	assert.ErrorIs(t, err, errBackend)
}

func TestCreateIdeaReadFailureKeepsExistingData(t *testing.T) {
	ctx := context.Background()
	kv := newFaultyKV()
	s := newTestStore(kv)
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))

	kv.failGet[model.KeyIdeas] = errBackend
	err := s.CreateIdea(ctx, testIdea("b", 2))
	require.ErrorIs(t, err, errBackend)

	delete(kv.failGet, model.KeyIdeas)
	got, _ := s.ListIdeas(ctx)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestVoteReadFailure(t *testing.T) {
	ctx := context.Background()
	kv := newFaultyKV()
	s := newTestStore(kv)
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))

	kv.failGet[model.KeyVotes] = errBackend
	recorded, err := s.Vote(ctx, "a")
	require.ErrorIs(t, err, errBackend)
	assert.False(t, recorded)

	delete(kv.failGet, model.KeyVotes)
	votes, _ := s.ListUserVotes(ctx)
	assert.Empty(t, votes)
}

func TestVotePartialFailureWithoutBatcher(t *testing.T) {
	ctx := context.Background()
	kv := newFaultyKV()
	s := newTestStore(kv)
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))

	kv.failSet[model.KeyIdeas] = errBackend
	recorded, err := s.Vote(ctx, "a")
	var serr *StorageError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, model.KeyIdeas, serr.Key)
	assert.False(t, recorded)

	delete(kv.failSet, model.KeyIdeas)

	// The vote landed, the counter did not.
	votes, _ := s.ListUserVotes(ctx)
	assert.Equal(t, []string{"a"}, votes)
	got, _ := s.ListIdeas(ctx)
	assert.Equal(t, 0, got[0].Votes)

	recorded, err = s.Vote(ctx, "a")
	require.NoError(t, err)
	assert.False(t, recorded)
}

func TestVoteAtomicWithBatcher(t *testing.T) {
	ctx := context.Background()
	kv := &faultyBatchKV{faultyKV: newFaultyKV()}
	s := newTestStore(kv)
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))

	kv.failBatch = errBackend
	_, err := s.Vote(ctx, "a")
	require.ErrorIs(t, err, errBackend)

	votes, _ := s.ListUserVotes(ctx)
	assert.Empty(t, votes)
	got, _ := s.ListIdeas(ctx)
	assert.Equal(t, 0, got[0].Votes)

	kv.failBatch = nil
	recorded, err := s.Vote(ctx, "a")
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, 2, kv.batches)

	got, _ = s.ListIdeas(ctx)
	assert.Equal(t, 1, got[0].Votes)
}

func TestConcurrentVotesRecordOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())
	require.NoError(t, s.CreateIdea(ctx, testIdea("a", 1)))
	require.NoError(t, s.CreateIdea(ctx, testIdea("b", 1)))

	var recordedCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "a"
			if i%2 == 1 {
				id = "b"
			}
			ok, err := s.Vote(ctx, id)
			assert.NoError(t, err)
			if ok {
				recordedCount.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 2, recordedCount.Load())
	got, _ := s.ListIdeas(ctx)
	assert.Equal(t, 1, got[0].Votes)
	assert.Equal(t, 1, got[1].Votes)
	votes, _ := s.ListUserVotes(ctx)
	assert.ElementsMatch(t, []string{"a", "b"}, votes)
}

func TestConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(database.NewMemory())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.CreateIdea(ctx, testIdea(string(rune('A'+i)), i)))
		}(i)
	}
	wg.Wait()

	got, _ := s.ListIdeas(ctx)
	assert.Len(t, got, 25)
}

func TestParseReadErrorPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    ReadErrorPolicy
		wantErr bool
	}{
		{"", ReadErrorReturnEmpty, false},
		{"empty", ReadErrorReturnEmpty, false},
		{"Propagate", ReadErrorPropagate, false},
		{"panic", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReadErrorPolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
