package guidgen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var guidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestNew_MatchesLowercaseFormat(t *testing.T) {
	g := New()
	require.Regexp(t, guidPattern, g)
}

func TestNew_EachCallIsDistinct(t *testing.T) {
	require.NotEqual(t, New(), New())
}
