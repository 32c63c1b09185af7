package internal_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/dispatch/internal"
)

func TestNormalizeMethod(t *testing.T) {
	t.Parallel()

	verb, err := internal.NormalizeMethod("get")
	require.NoError(t, err)
	require.Equal(t, http.MethodGet, verb)

	_, err = internal.NormalizeMethod("BREW")
	require.ErrorIs(t, err, internal.ErrUnsupportedMethod)

	var me *internal.MethodError
	require.ErrorAs(t, err, &me)
	require.Equal(t, "BREW", me.Method)

	require.True(t, internal.IsSupportedMethod("Patch"))
	require.False(t, internal.IsSupportedMethod(""))
	require.Equal(t, []string{"CONNECT", "DELETE", "GET", "HEAD", "OPTIONS", "PATCH", "POST", "PUT", "TRACE"},
		internal.SupportedMethods())
}

func TestResourcePaths(t *testing.T) {
	t.Parallel()

	r := internal.NewResource("/b", "/a", "/b", "")
	require.Equal(t, []string{"/a", "/b"}, r.Paths())

	r.AddPath("/c")
	require.Equal(t, []string{"/a", "/b", "/c"}, r.Paths())

	r.SetPath("/only")
	require.Equal(t, []string{"/only"}, r.Paths())

	r.SetPaths("/x", "/y")
	require.Equal(t, []string{"/x", "/y"}, r.Paths())
}

func TestResourceSetMethodHandler(t *testing.T) {
	t.Parallel()

	t.Run("unsupported method leaves resource unchanged", func(t *testing.T) {
		t.Parallel()

		r := internal.NewResource("/r")
		require.NoError(t, r.SetMethodHandler(http.MethodGet, ok("get")))

		err := r.SetMethodHandler("FETCH", ok("fetch"))
		require.ErrorIs(t, err, internal.ErrUnsupportedMethod)
		require.Equal(t, 1, r.HandlerCount())
		require.Equal(t, []string{"GET"}, r.Methods())
	})

	t.Run("mixed case verbs normalize", func(t *testing.T) {
		t.Parallel()

		r := internal.NewResource("/r")
		require.NoError(t, r.SetMethodHandler("pOsT", ok("post")))
		require.Equal(t, []string{"POST"}, r.Methods())
		require.NotNil(t, r.ResolveHandler("POST", http.Header{}))
		require.Nil(t, r.ResolveHandler("post", http.Header{}))
		require.Nil(t, r.ResolveHandler("Post", http.Header{}))
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		t.Parallel()

		r := internal.NewResource("/r")
		require.ErrorIs(t, r.SetMethodHandler(http.MethodGet, nil), internal.ErrNilHandler)
		require.Zero(t, r.HandlerCount())
	})

	t.Run("zero filter rejected", func(t *testing.T) {
		t.Parallel()

		r := internal.NewResource("/r")
		err := r.SetMethodHandler(http.MethodGet, ok("x"), internal.Filter{Header: "Accept"})
		require.ErrorIs(t, err, internal.ErrInvalidFilter)
		require.Zero(t, r.HandlerCount())
	})

	t.Run("map filters", func(t *testing.T) {
		t.Parallel()

		r := internal.NewResource("/r")
		require.NoError(t, r.SetFilteredMethodHandler(http.MethodGet, internal.Filters{
			"Accept":        "application/json",
			"X-Api-Version": "v[12]",
		}, ok("v1")))
		require.NotNil(t, r.ResolveHandler(http.MethodGet, http.Header{
			"Accept":        {"application/json"},
			"X-Api-Version": {"v2"},
		}))
		require.Nil(t, r.ResolveHandler(http.MethodGet, http.Header{
			"Accept":        {"application/json"},
			"X-Api-Version": {"v3"},
		}))

		err := r.SetFilteredMethodHandler(http.MethodGet, internal.Filters{"Accept": "("}, ok("bad"))
		require.ErrorIs(t, err, internal.ErrInvalidFilter)
		require.Equal(t, 1, r.HandlerCount())

		err = r.SetFilteredMethodHandler("BREW", internal.Filters{"Accept": "("}, ok("bad"))
		require.ErrorIs(t, err, internal.ErrUnsupportedMethod)
	})
}

func TestResourceResolveHandler(t *testing.T) {
	t.Parallel()

	var hits []string
	mark := func(name string) internal.HandlerFunc {
		return func(*internal.Session) error {
			hits = append(hits, name)
			return nil
		}
	}

	r := internal.NewResource("/r")
	require.NoError(t, r.SetMethodHandler(http.MethodGet, mark("json"), internal.MustFilter("Accept", "application/json")))
	require.NoError(t, r.SetMethodHandler(http.MethodGet, mark("any")))
	require.NoError(t, r.SetMethodHandler(http.MethodGet, mark("unreachable")))

	t.Run("first matching registration wins", func(t *testing.T) {
		hits = nil
		h := r.ResolveHandler(http.MethodGet, http.Header{"Accept": {"text/plain"}})
		require.NoError(t, h(nil))
		require.Equal(t, []string{"any"}, hits)
	})

	t.Run("resolution is deterministic", func(t *testing.T) {
		hits = nil
		headers := http.Header{"Accept": {"application/json"}}
		for range 10 {
			require.NoError(t, r.ResolveHandler(http.MethodGet, headers)(nil))
		}
		require.Len(t, hits, 10)
		for _, h := range hits {
			require.Equal(t, "json", h)
		}
	})

	t.Run("absent header passes the filter", func(t *testing.T) {
		hits = nil
		require.NoError(t, r.ResolveHandler(http.MethodGet, http.Header{})(nil))
		require.Equal(t, []string{"json"}, hits)
	})

	t.Run("other methods miss", func(t *testing.T) {
		require.Nil(t, r.ResolveHandler(http.MethodPost, http.Header{}))
		require.Nil(t, r.ResolveHandler("BREW", http.Header{}))
	})
}
