package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSpecs = map[string]Option{
	"count":   {Description: "page size", Kind: KindNumber, Default: 100},
	"pages":   {Description: "page limit", Kind: KindPages, Default: Unbounded},
	"type":    {Description: "repo type", Kind: KindString, Default: "owner"},
	"timeout": {Description: "request timeout", Kind: KindDuration, Default: 30000},
	"verify":  {Description: "verify tls", Kind: KindBool, Default: false},
	"key":     {Description: "api key", Kind: KindString},
}

func TestResolveOptions(t *testing.T) {
	t.Parallel()

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()
		opts, err := ResolveOptions(testSpecs, nil)
		require.NoError(t, err)

		assert.Equal(t, 100, opts.Int("count"))
		assert.Equal(t, Unbounded, opts.Pages("pages"))
		assert.Equal(t, "owner", opts.String("type"))
		assert.Equal(t, 30*time.Second, opts.Duration("timeout"))
		assert.False(t, opts.Bool("verify"))
		_, hasKey := opts["key"]
		assert.False(t, hasKey)
	})

	t.Run("StringValues", func(t *testing.T) {
		t.Parallel()
		opts, err := ResolveOptions(testSpecs, map[string]any{
			"count":   "2",
			"pages":   "1",
			"timeout": "5s",
			"verify":  "true",
			"key":     "abc",
		})
		require.NoError(t, err)

		assert.Equal(t, 2, opts.Int("count"))
		assert.Equal(t, Pages(1), opts.Pages("pages"))
		assert.Equal(t, 5*time.Second, opts.Duration("timeout"))
		assert.True(t, opts.Bool("verify"))
		assert.Equal(t, "abc", opts.String("key"))
	})

	t.Run("JSONValues", func(t *testing.T) {
		t.Parallel()
		opts, err := ResolveOptions(testSpecs, map[string]any{
			"count":   float64(50),
			"pages":   "all",
			"timeout": float64(1500),
			"verify":  true,
		})
		require.NoError(t, err)

		assert.Equal(t, 50, opts.Int("count"))
		assert.Equal(t, Unbounded, opts.Pages("pages"))
		assert.Equal(t, 1500*time.Millisecond, opts.Duration("timeout"))
		assert.True(t, opts.Bool("verify"))
	})

	t.Run("UnknownName", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveOptions(testSpecs, map[string]any{"cuont": "1"})
		assert.ErrorIs(t, err, ErrInvalidOption)
		assert.Contains(t, err.Error(), "cuont")
	})

	t.Run("BadValues", func(t *testing.T) {
		t.Parallel()
		for name, value := range map[string]any{
			"count":   "many",
			"pages":   "0",
			"timeout": "soon",
			"verify":  "maybe",
		} {
			_, err := ResolveOptions(testSpecs, map[string]any{name: value})
			assert.ErrorIs(t, err, ErrInvalidOption, name)
		}
	})

	t.Run("FractionalNumber", func(t *testing.T) {
		t.Parallel()
		_, err := ResolveOptions(testSpecs, map[string]any{"count": 1.5})
		assert.ErrorIs(t, err, ErrInvalidOption)
	})
}

func TestPageLimit(t *testing.T) {
	t.Parallel()

	assert.True(t, Unbounded.Allows(1))
	assert.True(t, Unbounded.Allows(1_000_000))
	_, bounded := Unbounded.Bounded()
	assert.False(t, bounded)
	assert.Equal(t, "unbounded", Unbounded.String())

	two := Pages(2)
	assert.True(t, two.Allows(2))
	assert.False(t, two.Allows(3))
	n, bounded := two.Bounded()
	assert.True(t, bounded)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2", two.String())

	assert.Equal(t, Pages(1), Pages(0))
}
