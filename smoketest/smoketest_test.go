package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

type inlinePool struct{}

func (inlinePool) RequestWork(fn func()) {
	fn()
}

// stalledPool never runs work.
type stalledPool struct{}

func (stalledPool) RequestWork(fn func()) {}

func TestRun(t *testing.T) {
	t.Run("wall is carved and destroyed", func(t *testing.T) {
		res, err := Run(context.Background(), Options{Workers: inlinePool{}})
		require.NoError(t, err)
		require.Equal(t, defaultImpacts, res.Impacts)
		require.NotZero(t, res.Carved)
		require.Equal(t, 12, res.TrianglesBefore)
		require.NotZero(t, res.DestroyedCells)
		require.Empty(t, res.Error)
	})

	t.Run("run times out", func(t *testing.T) {
		_, err := Run(context.Background(), Options{
			Workers: stalledPool{},
			Impacts: 1,
			Timeout: 20 * time.Millisecond,
		})
		require.Error(t, err)
		require.Equal(t, ErrTypeTimeout, errors.Type(err))
	})
}

func TestHandleSmokeTest(t *testing.T) {
	t.Run("results are sent", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		ctx = context.WithValue(ctx, testCtxKeyValue, testContext{
			Context: ctx,
			Cancel:  cancel,
		})

		var got Results
		h := HandleSmokeTest(ctx, Options{
			Workers: inlinePool{},
			SendResult: func(_ context.Context, res Results) error {
				got = res
				return nil
			},
		})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{"impacts":2}`)))
		require.Equal(t, http.StatusOK, w.Code)

		<-ctx.Done()
		require.ErrorIs(t, ctx.Err(), context.Canceled)
		require.Equal(t, 2, got.Impacts)
		require.NotZero(t, got.DestroyedCells)
		require.Empty(t, got.Error)
	})

	t.Run("invalid request returns bad request", func(t *testing.T) {
		h := HandleSmokeTest(context.Background(), Options{})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{`)))
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}
