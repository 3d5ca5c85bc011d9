package httpx

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBearerChallenge(t *testing.T) {
	t.Parallel()

	t.Run("no params", func(t *testing.T) {
		require.Equal(t, "Bearer", BearerChallenge())
	})

	t.Run("plain params keep order", func(t *testing.T) {
		got := BearerChallenge(
			ChallengeParam{Key: "realm", Value: "example"},
			ChallengeParam{Key: "error", Value: "invalid_token"},
		)
		require.Equal(t, `Bearer realm="example", error="invalid_token"`, got)
	})

	t.Run("hostile value is escaped and stripped", func(t *testing.T) {
		got := BearerChallenge(
			ChallengeParam{Key: "realm", Value: "example"},
			ChallengeParam{Key: "error", Value: "bad\"value\r\nmalicious"},
		)
		require.Equal(t, `Bearer realm="example", error="bad\"valuemalicious"`, got)
	})

	t.Run("backslash is escaped", func(t *testing.T) {
		got := BearerChallenge(ChallengeParam{Key: "error", Value: `a\b`})
		require.Equal(t, `Bearer error="a\\b"`, got)
	})

	t.Run("non-token key is dropped", func(t *testing.T) {
		got := BearerChallenge(
			ChallengeParam{Key: "bad key\r\nInjected", Value: "x"},
			ChallengeParam{Key: "realm", Value: "example"},
		)
		require.Equal(t, `Bearer realm="example"`, got)
	})
}

func TestWriteBearerChallenge(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteBearerChallenge(rec, 401, ChallengeParam{Key: "error", Value: "invalid_token"})

	require.Equal(t, 401, rec.Code)
	require.Equal(t, `Bearer error="invalid_token"`, rec.Header().Get("WWW-Authenticate"))
}
