// Package integration black-box-tests a running server binary over its
// HTTP wire protocol: build the binary if missing, launch it as a
// subprocess, poll /health until ready, then drive the real wire protocol
// exactly as an external client would.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/keys"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sophos"
	"github.com/OpenSSE/opensse-schemes-sub000/pkg/models"
)

type sseTestServer struct {
	t          *testing.T
	proc       *exec.Cmd
	addr       string
	httpClient *http.Client
}

func newSophosTestServer(t *testing.T) *sseTestServer {
	return &sseTestServer{
		t:          t,
		addr:       "http://127.0.0.1:18453",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func (s *sseTestServer) start(dir string) error {
	binPath := filepath.Join("bin", "server")
	if _, err := os.Stat(binPath); os.IsNotExist(err) {
		s.t.Log("building server binary...")
		build := exec.Command("go", "build", "-o", binPath, "../../cmd/server")
		if out, err := build.CombinedOutput(); err != nil {
			return fmt.Errorf("failed to build server: %w: %s", err, out)
		}
	}

	s.proc = exec.Command("./" + binPath)
	s.proc.Env = append(os.Environ(),
		"SSE_SCHEME=sophos",
		"SSE_SERVER_DIR="+dir,
		"SSE_SERVER_ADDR=:18453",
	)
	s.proc.Stdout = os.Stdout
	s.proc.Stderr = os.Stderr
	if err := s.proc.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.waitForHealth()
}

func (s *sseTestServer) waitForHealth() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for server health")
		default:
			resp, err := s.httpClient.Get(s.addr + "/api/v1/health")
			if err == nil && resp.StatusCode == http.StatusOK {
				resp.Body.Close()
				return nil
			}
			if resp != nil {
				resp.Body.Close()
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func (s *sseTestServer) stop() {
	if s.proc != nil && s.proc.Process != nil {
		s.proc.Process.Kill()
		s.proc.Wait()
	}
}

func (s *sseTestServer) postJSON(path string, body any) ([]byte, int, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	resp, err := s.httpClient.Post(s.addr+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return nil, 0, err
	}
	return out.Bytes(), resp.StatusCode, nil
}

// TestSophosServerSetupUpdateSearchRoundTrip drives the full Sophos wire
// protocol against a real server subprocess: setup, several updates for
// one keyword, then a search confirming every posting comes back and
// nothing is missing.
func TestSophosServerSetupUpdateSearchRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("skipping integration test: go toolchain not available to build the server binary")
	}

	serverDir := t.TempDir()
	clientDir := t.TempDir()

	srv := newSophosTestServer(t)
	if err := srv.start(serverDir); err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	defer srv.stop()

	ck, err := keys.SetupSophosClient(clientDir)
	require.NoError(t, err)

	_, status, err := srv.postJSON("/api/v1/setup", models.SophosSetupRequest{
		PublicKey: ck.SK.Public().MarshalPublic(),
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	cl := sophos.NewClient(ck.Counters, ck.Kd, ck.Kpi, ck.SK)

	keyword := []byte("bitcoin")
	const postingCount = 5
	for ix := uint64(0); ix < postingCount; ix++ {
		msg, err := cl.Update(keyword, ix)
		require.NoError(t, err)

		_, status, err := srv.postJSON("/api/v1/update", models.UpdateRequest{
			UpdateToken: msg.U[:],
			Index:       msg.E[:],
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
	}

	req, found, err := cl.SearchRequestFor(keyword)
	require.NoError(t, err)
	require.True(t, found)

	body, status, err := srv.postJSON("/api/v1/search", models.SophosSearchRequest{
		AddCount:      req.AddCount,
		DerivationKey: req.Kw[:],
		SearchToken:   req.STop[:],
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	var reply models.SearchReply
	require.NoError(t, json.Unmarshal(body, &reply))
	require.Equal(t, 0, reply.Missing)
	require.Len(t, reply.Postings, postingCount)

	seen := make(map[uint64]bool)
	for _, ix := range reply.Postings {
		seen[ix] = true
	}
	for ix := uint64(0); ix < postingCount; ix++ {
		require.True(t, seen[ix], "posting %d missing from search reply", ix)
	}
}
