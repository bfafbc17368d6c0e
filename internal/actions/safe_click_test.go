package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-e2e/api/schemas"
	"github.com/xkilldash9x/scalpel-e2e/internal/mocks"
)

func TestSafeClick(t *testing.T) {
	flaky := errors.New("element is not attached to the DOM")

	t.Run("succeeds on a later attempt with one step", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Click", mock.Anything, "#checkoutBtn").Return(flaky).Twice()
		page.On("Click", mock.Anything, "#checkoutBtn").Return(nil).Once()
		log := &stepLog{}

		err := newActions(t, page, log, false).SafeClick(context.Background(), "#checkoutBtn", 3, time.Millisecond)
		require.NoError(t, err)
		page.AssertNumberOfCalls(t, "Click", 3)

		steps := log.all()
		require.Len(t, steps, 1)
		assert.Equal(t, schemas.StatusPass, steps[0].Status)
		assert.Equal(t, "SafeClick → #checkoutBtn (attempt 3)", steps[0].Message)
	})

	t.Run("returns the last error after exhausting attempts", func(t *testing.T) {
		last := errors.New("final failure")
		page := new(mocks.MockPage)
		page.On("Click", mock.Anything, "#finishBtn").Return(flaky).Once()
		page.On("Click", mock.Anything, "#finishBtn").Return(last).Once()
		page.On("Screenshot", mock.Anything).Return(png, nil)
		log := &stepLog{}

		err := newActions(t, page, log, false).SafeClick(context.Background(), "#finishBtn", 2, time.Millisecond)
		require.Error(t, err)
		assert.ErrorIs(t, err, last)
		assert.NotErrorIs(t, err, flaky)
		page.AssertNumberOfCalls(t, "Click", 2)

		steps := log.all()
		require.Len(t, steps, 1)
		assert.Equal(t, schemas.StatusFail, steps[0].Status)
	})

	for _, retries := range []int{0, -3, 1} {
		page := new(mocks.MockPage)
		page.On("Click", mock.Anything, "#x").Return(flaky)
		page.On("Screenshot", mock.Anything).Return(png, nil)

		err := newActions(t, page, &stepLog{}, false).SafeClick(context.Background(), "#x", retries, time.Millisecond)
		assert.Error(t, err)
		page.AssertNumberOfCalls(t, "Click", 1)
	}

	t.Run("cancellation interrupts the delay", func(t *testing.T) {
		page := new(mocks.MockPage)
		page.On("Click", mock.Anything, "#x").Return(flaky)
		page.On("Screenshot", mock.Anything).Return(png, nil)
		log := &stepLog{}

		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		start := time.Now()
		err := newActions(t, page, log, false).SafeClick(ctx, "#x", 5, time.Hour)
		assert.Less(t, time.Since(start), 10*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
		page.AssertNumberOfCalls(t, "Click", 1)
		require.Len(t, log.all(), 1)
		assert.Equal(t, schemas.StatusFail, log.all()[0].Status)
	})
}
