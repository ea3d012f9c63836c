package solverclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/fieldsched/internal/schederr"
	"github.com/pageza/fieldsched/internal/solver/model"
)

func TestHTTPClient_Optimize_SuccessDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/optimize-schedule", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.Response{Status: model.StatusSuccess})
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 0, time.Second)
	resp, err := c.Optimize(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, resp.Status)
}

func TestHTTPClient_Optimize_BadRequestIsInputValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(model.Response{Status: model.StatusError, Message: "bad request"})
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 0, time.Second)
	_, err := c.Optimize(context.Background(), model.Request{})
	require.Error(t, err)
	assert.Equal(t, schederr.KindInputValidation, schederr.KindOf(err))
}

func TestHTTPClient_Optimize_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(model.Response{Status: model.StatusSuccess})
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 3, time.Second)
	resp, err := c.Optimize(context.Background(), model.Request{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, 3, attempts)
}

func TestHTTPClient_Optimize_ExhaustsRetriesAsTransientIO(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 1, time.Second)
	_, err := c.Optimize(context.Background(), model.Request{})
	require.Error(t, err)
	assert.Equal(t, schederr.KindTransientIO, schederr.KindOf(err))
}

func TestHTTPClient_Health_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(model.HealthResponse{Status: "ok", Timestamp: "2026-01-01T00:00:00Z"})
	}))
	defer srv.Close()

	c := New(srv.URL, 100, 0, time.Second)
	health, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", health.Status)
}

type stubClient struct {
	resp *model.Response
	err  error
	hits int
}

func (s *stubClient) Optimize(ctx context.Context, req model.Request) (*model.Response, error) {
	s.hits++
	return s.resp, s.err
}

func TestFallback_UsesPrimaryWhenItSucceeds(t *testing.T) {
	primary := &stubClient{resp: &model.Response{Status: model.StatusSuccess}}
	secondary := &stubClient{resp: &model.Response{Status: model.StatusPartial}}

	c := Fallback(primary, secondary)
	resp, err := c.Optimize(context.Background(), model.Request{})

	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, resp.Status)
	assert.Equal(t, 1, primary.hits)
	assert.Equal(t, 0, secondary.hits)
}

func TestFallback_FallsThroughToSecondaryOnPrimaryError(t *testing.T) {
	primary := &stubClient{err: errors.New("solver unreachable")}
	secondary := &stubClient{resp: &model.Response{Status: model.StatusPartial}}

	c := Fallback(primary, secondary)
	resp, err := c.Optimize(context.Background(), model.Request{})

	require.NoError(t, err)
	assert.Equal(t, model.StatusPartial, resp.Status)
	assert.Equal(t, 1, primary.hits)
	assert.Equal(t, 1, secondary.hits)
}

func TestFallback_PrimaryStatusErrorResponseIsNotTreatedAsTransportFailure(t *testing.T) {
	primary := &stubClient{resp: &model.Response{Status: model.StatusError, Message: "infeasible"}}
	secondary := &stubClient{resp: &model.Response{Status: model.StatusSuccess}}

	c := Fallback(primary, secondary)
	resp, err := c.Optimize(context.Background(), model.Request{})

	require.NoError(t, err)
	assert.Equal(t, model.StatusError, resp.Status, "a solved-but-infeasible response is not a transport failure")
	assert.Equal(t, 0, secondary.hits)
}
