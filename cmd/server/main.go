// Command server runs an SSE server process: opens the encrypted store
// (file-backed by default, pgx-backed if SSE_PG_DSN is set), restores or
// creates the scheme's server-side key material, and serves the
// setup/update/search RPCs over HTTP.
//
// Startup follows an env-var-driven convention: requireEnv/getEnvOrDefault,
// fail loudly on missing required config.
package main

import (
	"context"
	"log"
	"os"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/api"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/diana"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/janus"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/keys"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sophos"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/store/pgstore"
)

func main() {
	log.Println("Starting OpenSSE server...")

	scheme := requireEnv("SSE_SCHEME")
	dir := requireEnv("SSE_SERVER_DIR")
	addr := getEnvOrDefault("SSE_SERVER_ADDR", ":8443")

	hub := api.NewHub()

	var handler *api.Handler

	switch scheme {
	case "sophos":
		backend := openBackend(dir, "sophos_kv")
		pk, err := keys.OpenSophosServer(dir)
		if err != nil {
			log.Printf("no existing Sophos server key material in %s, waiting for /api/v1/setup: %v", dir, err)
		}
		server := sophos.NewServer(backend, pk)
		handler = api.NewSophosHandler(dir, server, hub)

	case "diana":
		backend := openBackend(dir, "diana_kv")
		server := diana.NewServer(backend)
		handler = api.NewDianaHandler(dir, server, hub)

	case "janus":
		addBackend := openBackend(dir, "janus_add_kv")
		delBackend := openBackend(dir, "janus_del_kv")
		addCore := diana.NewServer(addBackend)
		delCore := diana.NewServer(delBackend)
		server := janus.NewServer(addCore, delCore)
		handler = api.NewJanusHandler(dir, server, hub)

	default:
		log.Fatalf("FATAL: unknown SSE_SCHEME %q (want sophos, diana, or janus)", scheme)
	}

	r := api.SetupRouter(handler)
	log.Printf("OpenSSE %s server listening on %s", scheme, addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// openBackend opens the file-backed store under dir/name.dat, or the
// pgx-backed store in the SSE_PG_DSN database under a table named after
// name if SSE_PG_DSN is set.
func openBackend(dir, name string) store.Backend {
	if dsn := os.Getenv("SSE_PG_DSN"); dsn != "" {
		st, err := pgstore.Open(context.Background(), dsn, name)
		if err != nil {
			log.Fatalf("FATAL: cannot open pgx-backed store %s: %v", name, err)
		}
		return st
	}
	st, err := store.Open(dir + "/" + name + ".dat")
	if err != nil {
		log.Fatalf("FATAL: cannot open store %s: %v", name, err)
	}
	return st
}

func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
