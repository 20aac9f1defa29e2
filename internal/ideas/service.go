package ideas

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/go-playground/validator.v9"

	"github.com/bryan-buckman/ideaboard/internal/model"
	"github.com/bryan-buckman/ideaboard/internal/rating"
)

// Submission is the user-entered part of a new idea.
type Submission struct {
	Name        string `json:"name" validate:"required"`
	Tagline     string `json:"tagline" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// Service builds complete ideas from submissions and stores them.
type Service struct {
	store    *Store
	scorer   rating.Scorer
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how idea ids are generated.
func WithIDGenerator(f func() string) ServiceOption {
	return func(s *Service) { s.newID = f }
}

// NewService creates a Service. Validation errors name fields by their json tag.
func NewService(store *Store, scorer rating.Scorer, opts ...ServiceOption) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	s := &Service{
		store:    store,
		scorer:   scorer,
		validate: v,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator returns the validator used by Submit, so callers can register
// translations on it.
func (s *Service) Validator() *validator.Validate {
	return s.validate
}

// Submit trims and validates sub, rates it and stores the resulting idea.
// Invalid input returns validator.ValidationErrors; storage failures return
// *StorageError.
func (s *Service) Submit(ctx context.Context, sub Submission) (model.Idea, error) {
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Tagline = strings.TrimSpace(sub.Tagline)
	sub.Description = strings.TrimSpace(sub.Description)
	if err := s.validate.Struct(sub); err != nil {
		return model.Idea{}, err
	}

	idea := model.Idea{
		ID:          s.newID(),
		Name:        sub.Name,
		Tagline:     sub.Tagline,
		Description: sub.Description,
		CreatedAt:   s.now().UTC(),
	}
	r, err := s.scorer.Score(ctx, idea)
	if err != nil {
		return model.Idea{}, fmt.Errorf("score idea: %w", err)
	}
	idea.Rating = rating.Clamp(r)

	if err := s.store.CreateIdea(ctx, idea); err != nil {
		return model.Idea{}, err
	}
	return idea, nil
}
