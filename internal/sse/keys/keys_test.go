package keys

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
)

func TestSophosSetupThenOpenRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "client")

	created, err := SetupSophosClient(dir)
	require.NoError(t, err)
	require.Len(t, created.Kd, 32)
	require.Len(t, created.Kpi, 32)

	reopened, err := OpenSophosClient(dir)
	require.NoError(t, err)
	require.Equal(t, created.Kd, reopened.Kd)
	require.Equal(t, created.Kpi, reopened.Kpi)
}

func TestSophosSetupRefusesExistingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "client")
	_, err := SetupSophosClient(dir)
	require.NoError(t, err)

	_, err = SetupSophosClient(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, sseerr.ErrInvalidStateTransition))
}

func TestSophosOpenMissingDirectoryIsMissingState(t *testing.T) {
	_, err := OpenSophosClient(filepath.Join(t.TempDir(), "never-created"))
	require.Error(t, err)
	require.True(t, errors.Is(err, sseerr.ErrMissingState))
}

func TestSophosServerSetupThenOpenRoundTrips(t *testing.T) {
	clientDir := filepath.Join(t.TempDir(), "client")
	client, err := SetupSophosClient(clientDir)
	require.NoError(t, err)

	serverDir := filepath.Join(t.TempDir(), "server")
	require.NoError(t, SetupSophosServer(serverDir, client.SK.Public()))

	_, err = OpenSophosServer(serverDir)
	require.NoError(t, err)

	err = SetupSophosServer(serverDir, client.SK.Public())
	require.Error(t, err)
	require.True(t, errors.Is(err, sseerr.ErrInvalidStateTransition))
}

func TestDianaSetupThenOpenRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "client")
	created, err := SetupDianaClient(dir)
	require.NoError(t, err)

	reopened, err := OpenDianaClient(dir)
	require.NoError(t, err)
	require.Equal(t, created.Kroot, reopened.Kroot)
	require.Equal(t, created.Kkw, reopened.Kkw)
}

func TestJanusSetupThenOpenRoundTrips(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "client")
	created, err := SetupJanusClient(dir)
	require.NoError(t, err)

	reopened, err := OpenJanusClient(dir)
	require.NoError(t, err)
	require.Equal(t, created.Kj, reopened.Kj)
}

func TestKeyFileWithWrongLengthIsCorruptState(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "client")
	_, err := SetupDianaClient(dir)
	require.NoError(t, err)

	require.NoError(t, writeKeyFile(filepath.Join(dir, "master_derivation.key"), []byte("too-short")))

	_, err = OpenDianaClient(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, sseerr.ErrCorruptState))
}

func TestNewSessionIDIsUnique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	require.NotEqual(t, a, b)
	require.NotEmpty(t, a)
}
