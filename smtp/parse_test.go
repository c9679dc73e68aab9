package smtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCmd(t *testing.T) {
	cases := []struct {
		line     string
		wantVerb string
		wantArg  string
		wantErr  bool
	}{
		{"", "", "", false},
		{"NOOP", "NOOP", "", false},
		{"noop", "NOOP", "", false},
		{"MAIL FROM:<a@b>", "MAIL", "FROM:<a@b>", false},
		{"QUIT ", "", "", true},
		{"ab", "", "", true},
		{"RSET ", "", "", true},
		{"starttls", "STARTTLS", "", false},
		{"STARTTLS foo", "STARTTLS", "", false},
		{"DATA ", "", "", true}, // len 5 mangled
	}
	for _, c := range cases {
		verb, arg, err := parseCmd(c.line)
		if c.wantErr {
			require.Error(t, err, c.line)
			continue
		}
		require.NoError(t, err, c.line)
		require.Equal(t, c.wantVerb, verb, c.line)
		require.Equal(t, c.wantArg, arg, c.line)
	}
}

func TestParseArgs(t *testing.T) {
	m, err := parseArgs([]string{"SIZE=1024", "SMTPUTF8", ""})
	require.NoError(t, err)
	require.Equal(t, "1024", m["SIZE"])
	require.Equal(t, "", m["SMTPUTF8"])
	require.Len(t, m, 2)
}

func TestDecodeXtext(t *testing.T) {
	decoded, err := decodeXtext("foo+2Bbar")
	require.NoError(t, err)
	require.Equal(t, "foo+bar", decoded)

	decoded, err = decodeXtext("plain")
	require.NoError(t, err)
	require.Equal(t, "plain", decoded)

	_, err = decodeXtext("foo+2")
	require.Error(t, err)

	_, err = decodeXtext("foo+zz")
	require.Error(t, err)

	_, err = decodeXtext("foo+2b")
	require.Error(t, err, "lower-case hex digits are rejected")
}
