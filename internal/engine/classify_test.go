package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thureinphyoecoder/larapee-sync/internal/api"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unauthorized", &api.StatusError{Code: 401}, RecommendReauth},
		{"forbidden", &api.StatusError{Code: 403}, RecommendReauth},
		{"conflict", &api.StatusError{Code: 409}, RecommendReview},
		{"unprocessable", &api.StatusError{Code: 422}, RecommendReview},
		{"not found", &api.StatusError{Code: 404}, RecommendReview},
		{"bad request", &api.StatusError{Code: 400}, RecommendReview},
		{"server error", &api.StatusError{Code: 500}, RecommendWait},
		{"bad gateway", &api.StatusError{Code: 502}, RecommendWait},
		{"service unavailable", &api.StatusError{Code: 503}, RecommendWait},
		{"transport failure", errors.New("dial tcp: connection refused"), RecommendConnection},
		{"timeout", errors.New("context deadline exceeded"), RecommendConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_UnwrapsStatusError(t *testing.T) {
	wrapped := fmt.Errorf("create order: %w", &api.StatusError{Code: 422, Body: "bad items"})
	assert.Equal(t, RecommendReview, Classify(wrapped))
}
