package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorRoundTrip(t *testing.T) {
	d := Descriptor{ImageName: "img", DriverName: "fs"}
	require.Equal(t, "img/fs", d.String())

	got, err := ParseDescriptor(d.String())
	require.NoError(t, err)
	require.Equal(t, d, got)
}

func TestParseDescriptorRejectsMissingSlash(t *testing.T) {
	_, err := ParseDescriptor("imgfs")
	require.Error(t, err)
}

func TestParseDescriptorRejectsEmptySides(t *testing.T) {
	for _, s := range []string{"/fs", "img/", "/"} {
		_, err := ParseDescriptor(s)
		require.Errorf(t, err, "expected parse error for %q", s)
	}
}

func TestParseDescriptorRejectsMultipleSlashes(t *testing.T) {
	_, err := ParseDescriptor("a/b/c")
	require.Error(t, err)
}

func TestParseDescriptorSucceedsIffOneSlashNonEmptySides(t *testing.T) {
	cases := map[string]bool{
		"img/fs":  true,
		"a/b":     true,
		"img":     false,
		"/fs":     false,
		"img/":    false,
		"a/b/c":   false,
		"":        false,
	}
	for s, want := range cases {
		_, err := ParseDescriptor(s)
		require.Equalf(t, want, err == nil, "ParseDescriptor(%q)", s)
	}
}
