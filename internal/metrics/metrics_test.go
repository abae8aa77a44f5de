package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ConnectionAccepted()
	m.HandshakeFailed()
	m.OptionReplied("1", "1")
	m.CommandProcessed("read")
	m.CommandFailed("write", "5")
	require.Nil(t, m.Registry())
}

func TestNewRegistersCollectors(t *testing.T) {
	m := New("nbdserver_test")
	m.ConnectionAccepted()
	m.OptionReplied("3", "2")

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
