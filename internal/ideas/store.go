// Package ideas persists startup ideas and the local user's votes.
package ideas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/bryan-buckman/ideaboard/internal/database"
	"github.com/bryan-buckman/ideaboard/internal/model"
)

// ReadErrorPolicy decides what the list operations do when the backend read fails.
type ReadErrorPolicy int

const (
	// ReadErrorReturnEmpty logs the failure and returns an empty result.
	ReadErrorReturnEmpty ReadErrorPolicy = iota
	// ReadErrorPropagate returns the failure as a *StorageError.
	ReadErrorPropagate
)

// ParseReadErrorPolicy accepts "empty" or "propagate".
func ParseReadErrorPolicy(s string) (ReadErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "empty":
		return ReadErrorReturnEmpty, nil
	case "propagate":
		return ReadErrorPropagate, nil
	default:
		return 0, fmt.Errorf("invalid read error policy %q (want empty or propagate)", s)
	}
}

func (p ReadErrorPolicy) String() string {
	if p == ReadErrorPropagate {
		return "propagate"
	}
	return "empty"
}

// Option configures a Store.
type Option func(*Store)

// WithReadErrorPolicy sets how ListIdeas and ListUserVotes treat read failures.
func WithReadErrorPolicy(p ReadErrorPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger sets the logger used for storage failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Store keeps two documents in the backend: the idea list and the vote set.
//
// CreateIdea and Vote are read-modify-write sequences and are serialised
// within the process. When the backend implements database.Batcher, Vote
// writes both documents atomically; otherwise the vote set is written first
// and a failure on the idea list leaves the vote recorded without the
// counter increment.
type Store struct {
	kv     database.Store
	policy ReadErrorPolicy
	log    *slog.Logger

	mu sync.Mutex
}

// New creates a Store over kv.
func New(kv database.Store, opts ...Option) *Store {
	s := &Store{
		kv:  kv,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateIdea appends idea to the stored list. Field contents are not validated.
func (s *Store) CreateIdea(ctx context.Context, idea model.Idea) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ideas, err := s.loadIdeas(ctx)
	if err != nil {
		s.log.Error("Error saving idea", "id", idea.ID, "error", err)
		return err
	}
	if slices.ContainsFunc(ideas, func(i model.Idea) bool { return i.ID == idea.ID }) {
		return fmt.Errorf("%w: %s", ErrDuplicateIdea, idea.ID)
	}

	ideas = append(ideas, idea)
	if err := s.save(ctx, model.KeyIdeas, ideas); err != nil {
		s.log.Error("Error saving idea", "id", idea.ID, "error", err)
		return err
	}
	return nil
}

// ListIdeas returns every stored idea, oldest first.
func (s *Store) ListIdeas(ctx context.Context) ([]model.Idea, error) {
	ideas, err := s.loadIdeas(ctx)
	if err != nil {
		if s.policy == ReadErrorPropagate {
			return nil, err
		}
		s.log.Warn("Error getting ideas", "error", err)
		return []model.Idea{}, nil
	}
	return ideas, nil
}

// ListUserVotes returns the ids the local user has voted for.
func (s *Store) ListUserVotes(ctx context.Context) ([]string, error) {
	votes, err := s.loadVotes(ctx)
	if err != nil {
		if s.policy == ReadErrorPropagate {
			return nil, err
		}
		s.log.Warn("Error getting user votes", "error", err)
		return []string{}, nil
	}
	return votes, nil
}

// Vote records a vote for ideaID and increments its counter. It returns false
// without changing anything when the user already voted for ideaID. A vote
// for an id that matches no idea is still recorded.
func (s *Store) Vote(ctx context.Context, ideaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	votes, err := s.loadVotes(ctx)
	if err != nil {
		s.log.Error("Error voting for idea", "id", ideaID, "error", err)
		return false, err
	}
	if slices.Contains(votes, ideaID) {
		return false, nil
	}
	votes = append(votes, ideaID)

	ideas, err := s.loadIdeas(ctx)
	if err != nil {
		s.log.Error("Error voting for idea", "id", ideaID, "error", err)
		return false, err
	}
	updated := incrementVotes(ideas, ideaID)

	if b, ok := s.kv.(database.Batcher); ok {
		err = s.saveBoth(ctx, b, votes, updated)
	} else {
		err = s.save(ctx, model.KeyVotes, votes)
		if err == nil {
			err = s.save(ctx, model.KeyIdeas, updated)
		}
	}
	if err != nil {
		s.log.Error("Error voting for idea", "id", ideaID, "error", err)
		return false, err
	}
	return true, nil
}

// incrementVotes returns a copy of ideas with the matching entry's counter bumped.
func incrementVotes(ideas []model.Idea, id string) []model.Idea {
	out := make([]model.Idea, len(ideas))
	for i, idea := range ideas {
		if idea.ID == id {
			idea.Votes++
		}
		out[i] = idea
	}
	return out
}

func (s *Store) loadIdeas(ctx context.Context) ([]model.Idea, error) {
	ideas := []model.Idea{}
	if err := s.load(ctx, model.KeyIdeas, &ideas); err != nil {
		return nil, err
	}
	if ideas == nil {
		ideas = []model.Idea{}
	}
	return ideas, nil
}

func (s *Store) loadVotes(ctx context.Context) ([]string, error) {
	votes := []string{}
	if err := s.load(ctx, model.KeyVotes, &votes); err != nil {
		return nil, err
	}
	if votes == nil {
		votes = []string{}
	}
	return votes, nil
}

// load decodes key into v. An absent key leaves v untouched.
func (s *Store) load(ctx context.Context, key string, v any) error {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return &StorageError{Op: "read", Key: key, Err: err}
	}
	if !ok || data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return &StorageError{Op: "decode", Key: key, Err: err}
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Set(ctx, key, string(data)); err != nil {
		return &StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (s *Store) saveBoth(ctx context.Context, b database.Batcher, votes []string, ideas []model.Idea) error {
	votesData, err := json.Marshal(votes)
	if err != nil {
		return &StorageError{Op: "encode", Key: model.KeyVotes, Err: err}
	}
	ideasData, err := json.Marshal(ideas)
	if err != nil {
		return &StorageError{Op: "encode", Key: model.KeyIdeas, Err: err}
	}
	err = b.SetMany(ctx, []database.Entry{
		{Key: model.KeyVotes, Value: string(votesData)},
		{Key: model.KeyIdeas, Value: string(ideasData)},
	})
	if err != nil {
		return &StorageError{Op: "write", Key: model.KeyVotes + "," + model.KeyIdeas, Err: err}
	}
	return nil
}
