package submission

import (
	"context"
	"fmt"
	"strings"

	"vibetunes/internal/domain"
)

// Strategy selects how a recommendation is assembled from the backend.
type Strategy string

const (
	// StrategyCombined uses the videos returned alongside the genre.
	StrategyCombined Strategy = "combined"
	// StrategySplit classifies first, then looks videos up by genre.
	StrategySplit Strategy = "split"
)

// ParseStrategy accepts "combined" or "split"; empty means combined.
func ParseStrategy(v string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(v))) {
	case "", StrategyCombined:
		return StrategyCombined, nil
	case StrategySplit:
		return StrategySplit, nil
	default:
		return "", fmt.Errorf("unknown recommendation strategy %q", v)
	}
}

// Recommender turns an image into a genre and videos. It performs exactly one
// classification request per call.
type Recommender interface {
	Recommend(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error)
}

// RecommenderFunc adapts a function to Recommender.
type RecommenderFunc func(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error)

func (f RecommenderFunc) Recommend(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error) {
	return f(ctx, img)
}

// Backend is the remote API surface used by the recommendation pipeline.
type Backend interface {
	Classify(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error)
	SearchVideos(ctx context.Context, genre string) ([]domain.Video, error)
}

type pipeline struct {
	backend     Backend
	fetchVideos bool
}

// NewRecommender builds the submit → classify → (optionally) fetch pipeline for a strategy.
func NewRecommender(backend Backend, strategy Strategy) Recommender {
	return &pipeline{backend: backend, fetchVideos: strategy == StrategySplit}
}

func (p *pipeline) Recommend(ctx context.Context, img domain.ImagePayload) (*domain.Recommendation, error) {
	rec, err := p.backend.Classify(ctx, img)
	if err != nil {
		return nil, err
	}
	if !p.fetchVideos {
		return rec, nil
	}
	videos, err := p.backend.SearchVideos(ctx, rec.Genre)
	if err != nil {
		return nil, err
	}
	return &domain.Recommendation{Genre: rec.Genre, Videos: videos}, nil
}
