package quoting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuote_BareIdentifierUnchanged(t *testing.T) {
	require.Equal(t, "Opportunity", Quote("Opportunity"))
	require.Equal(t, "_foo9", Quote("_foo9"))
}

func TestQuote_SpecialCharactersTriggerQuoting(t *testing.T) {
	require.Equal(t, "'Estimated Close Date'", Quote("Estimated Close Date"))
	require.Equal(t, "'Account-Manager'", Quote("Account-Manager"))
	require.Equal(t, "'1stTable'", Quote("1stTable"))
}

func TestQuote_InternalQuotesAreDoubled(t *testing.T) {
	require.Equal(t, "'Tom''s Account'", Quote("Tom's Account"))
}

func TestQuote_Unquote_RoundTrip(t *testing.T) {
	for _, s := range []string{"Opportunity", "Estimated Close Date", "Tom's Account", "1stTable", ""} {
		require.Equal(t, s, Unquote(Quote(s)), "round trip for %q", s)
	}
}

func TestUnquote_BareStringPassesThrough(t *testing.T) {
	require.Equal(t, "Account", Unquote("Account"))
}
