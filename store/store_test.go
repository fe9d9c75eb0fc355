package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/formflow/errors"
	"github.com/c360/formflow/submission"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("sub-%d", n)
	}
}

func testOptions() []Option {
	return []Option{WithClock(func() time.Time { return fixedNow }), WithIDGenerator(sequentialIDs())}
}

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		BackendMemory: func(t *testing.T) Store {
			return NewMemoryStore(testOptions()...)
		},
		BackendSQLite: func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), MemoryDSN, testOptions()...)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func sampleSubmission() *submission.Submission {
	sub := submission.New("ubi")
	sub.Set("firstName", submission.Scalar("Alex"))
	sub.Set("incomeTypes[]", submission.List("job", "selfEmployment"))
	sub.AppendIteration("household", submission.NewIteration("u1", map[string]submission.Value{
		"householdMemberFirstName": submission.Scalar("Sam"),
	}))
	sub.MergeURLParams(map[string]string{"lang": "es"})
	return sub
}

func TestStore_CreateGet(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			sub := sampleSubmission()
			require.NoError(t, s.Create(ctx, sub))
			assert.Equal(t, "sub-1", sub.ID)
			assert.True(t, fixedNow.Equal(sub.CreatedAt))
			assert.NotZero(t, sub.Revision)

			got, err := s.Get(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, "ubi", got.Flow)
			assert.Equal(t, "Alex", got.GetString("firstName"))
			assert.Equal(t, "es", got.URLParams["lang"])
			assert.True(t, fixedNow.Equal(got.CreatedAt))
			assert.False(t, got.IsSubmitted())

			it, ok := got.Iteration("household", "u1")
			require.True(t, ok)
			assert.Equal(t, "Sam", it.GetString("householdMemberFirstName"))
			list, ok := got.InputData["incomeTypes[]"].AsList()
			require.True(t, ok)
			assert.Equal(t, []string{"job", "selfEmployment"}, list)
		})
	}
}

func TestStore_GetUnknown(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			_, err := factory(t).Get(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, errors.IsNotFound(err))
		})
	}
}

func TestStore_SaveCreatesAndUpdates(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			sub := sampleSubmission()
			require.NoError(t, s.Save(ctx, sub))
			require.False(t, sub.IsNew())

			sub.Set("lastName", submission.Scalar("Rivera"))
			sub.MarkSubmitted(fixedNow.Add(time.Hour))
			require.NoError(t, s.Save(ctx, sub))

			got, err := s.Get(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, "Rivera", got.GetString("lastName"))
			require.True(t, got.IsSubmitted())
			assert.True(t, fixedNow.Add(time.Hour).Equal(*got.SubmittedAt))
		})
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			sub := sampleSubmission()
			require.NoError(t, s.Create(ctx, sub))
			sub.Set("firstName", submission.Scalar("changed"))

			got, err := s.Get(ctx, sub.ID)
			require.NoError(t, err)
			assert.Equal(t, "Alex", got.GetString("firstName"))
		})
	}
}

func TestStore_ShortCodes(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			exists, err := s.ShortCodeExists(ctx, "ABC123")
			require.NoError(t, err)
			assert.False(t, exists)

			first := sampleSubmission()
			first.ShortCode = "ABC123"
			require.NoError(t, s.Create(ctx, first))

			exists, err = s.ShortCodeExists(ctx, "ABC123")
			require.NoError(t, err)
			assert.True(t, exists)

			// Saving the owner again keeps its code.
			require.NoError(t, s.Save(ctx, first))

			second := sampleSubmission()
			second.ShortCode = "ABC123"
			err = s.Create(ctx, second)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrConflict)
			assert.True(t, errors.IsTransient(err))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			sub := sampleSubmission()
			require.NoError(t, s.Create(ctx, sub))
			require.NoError(t, s.Delete(ctx, sub.ID))
			require.NoError(t, s.Delete(ctx, sub.ID))

			_, err := s.Get(ctx, sub.ID)
			assert.True(t, errors.IsNotFound(err))
			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStore_RejectsInvalidSubmission(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			assert.True(t, errors.IsInvalid(s.Save(context.Background(), nil)))
			assert.True(t, errors.IsInvalid(s.Save(context.Background(), &submission.Submission{})))
		})
	}
}

func TestSQLiteStore_CountByFlow(t *testing.T) {
	s, err := OpenSQLite(context.Background(), MemoryDSN, testOptions()...)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, submission.New("ubi")))
	require.NoError(t, s.Create(ctx, submission.New("ubi")))
	require.NoError(t, s.Create(ctx, submission.New("docUpload")))

	counts, err := s.CountByFlow(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ubi": 2, "docUpload": 1}, counts)
}

func TestShortCodeKey(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"ABC123", "shortcode.ABC123"},
		{"abc", "shortcode.ABC"},
		{"UBI-ab1", "shortcode.UBI-AB1"},
		{"a.b c", "shortcode.A_B_C"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortCodeKey(tt.code))
	}
}
