// Command client is the SSE client-side CLI: setup/update/bulk-load/
// search subcommands that derive wire messages from local key material
// (internal/sse/keys) and send them to an SSE server over HTTP (the
// api package's JSON wire shapes).
//
// Env-var-driven configuration follows the same requireEnv/getEnvOrDefault
// convention as the server binary; subcommand dispatch uses the standard
// flag package rather than a third-party CLI framework.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/diana"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/ingest"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/janus"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/keys"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sophos"
	"github.com/OpenSSE/opensse-schemes-sub000/pkg/models"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: client <setup|update|bulk-load|search> [flags]")
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	scheme := requireEnv("SSE_SCHEME")
	dir := requireEnv("SSE_CLIENT_DIR")
	serverAddr := getEnvOrDefault("SSE_SERVER_ADDR", "http://localhost:8443")
	authToken := os.Getenv("SSE_API_AUTH_TOKEN")

	cl := &client{scheme: scheme, dir: dir, serverAddr: serverAddr, authToken: authToken}

	switch cmd {
	case "setup":
		cl.runSetup()
	case "update":
		fs := flag.NewFlagSet("update", flag.ExitOnError)
		kw := fs.String("kw", "", "keyword")
		ix := fs.Uint64("id", 0, "document id")
		fs.Parse(args)
		if *kw == "" {
			log.Fatal("update requires -kw")
		}
		cl.runUpdate(*kw, *ix)
	case "bulk-load":
		fs := flag.NewFlagSet("bulk-load", flag.ExitOnError)
		path := fs.String("file", "", "JSON inverted-index file")
		workers := fs.Int("workers", 4, "loader worker count")
		fs.Parse(args)
		if *path == "" {
			log.Fatal("bulk-load requires -file")
		}
		cl.runBulkLoad(*path, *workers)
	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		kw := fs.String("kw", "", "keyword")
		fs.Parse(args)
		if *kw == "" {
			log.Fatal("search requires -kw")
		}
		cl.runSearch(*kw)
	default:
		log.Fatalf("unknown subcommand %q", cmd)
	}
}

type client struct {
	scheme     string
	dir        string
	serverAddr string
	authToken  string
}

func (c *client) post(path string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.serverAddr+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s: %s", resp.Status, out.String())
	}
	return out.Bytes(), nil
}

func (c *client) runSetup() {
	switch c.scheme {
	case "sophos":
		ck, err := keys.SetupSophosClient(c.dir)
		if err != nil {
			log.Fatalf("setup failed: %v", err)
		}
		pk := ck.SK.Public()
		_, err = c.post("/api/v1/setup", models.SophosSetupRequest{PublicKey: pk.MarshalPublic()})
		if err != nil {
			log.Fatalf("server setup failed: %v", err)
		}
		log.Println("Sophos client/server setup complete")
	case "diana":
		if _, err := keys.SetupDianaClient(c.dir); err != nil {
			log.Fatalf("setup failed: %v", err)
		}
		log.Println("Diana client setup complete")
	case "janus":
		if _, err := keys.SetupJanusClient(c.dir); err != nil {
			log.Fatalf("setup failed: %v", err)
		}
		log.Println("Janus client setup complete")
	default:
		log.Fatalf("unknown scheme %q", c.scheme)
	}
}

func (c *client) runUpdate(w string, ix uint64) {
	switch c.scheme {
	case "sophos":
		ck, err := keys.OpenSophosClient(c.dir)
		if err != nil {
			log.Fatalf("open client state failed: %v", err)
		}
		cl := sophos.NewClient(ck.Counters, ck.Kd, ck.Kpi, ck.SK)
		msg, err := cl.Update([]byte(w), ix)
		if err != nil {
			log.Fatalf("update failed: %v", err)
		}
		_, err = c.post("/api/v1/update", models.UpdateRequest{UpdateToken: msg.U[:], Index: msg.E[:]})
		if err != nil {
			log.Fatalf("server update failed: %v", err)
		}
	case "diana":
		ck, err := keys.OpenDianaClient(c.dir)
		if err != nil {
			log.Fatalf("open client state failed: %v", err)
		}
		cl := diana.NewClient(ck.Counters, ck.Kroot, ck.Kkw)
		msg, err := cl.Update([]byte(w), ix)
		if err != nil {
			log.Fatalf("update failed: %v", err)
		}
		_, err = c.post("/api/v1/update", models.UpdateRequest{UpdateToken: msg.U[:], Index: msg.E[:]})
		if err != nil {
			log.Fatalf("server update failed: %v", err)
		}
	case "janus":
		c.runJanusInsert(w, ix)
	default:
		log.Fatalf("unknown scheme %q", c.scheme)
	}
	log.Printf("updated %q -> %d", w, ix)
}

func (c *client) runJanusInsert(w string, ix uint64) {
	ck, err := keys.OpenJanusClient(c.dir)
	if err != nil {
		log.Fatalf("open client state failed: %v", err)
	}
	addCl := diana.NewClient(ck.AddCounters, ck.Kj, ck.Kj)
	delCl := diana.NewClient(ck.DelCounters, ck.Kj, ck.Kj)
	cl := janus.NewClient(ck.Kj, addCl, delCl)
	msg, err := cl.Insert([]byte(w), ix)
	if err != nil {
		log.Fatalf("insert failed: %v", err)
	}
	_, err = c.post("/api/v1/update?kind=insert", models.JanusUpdateRequest{
		UpdateToken: msg.Raw.U[:],
		Payload:     msg.Raw.E,
	})
	if err != nil {
		log.Fatalf("server update failed: %v", err)
	}
}

func (c *client) runBulkLoad(path string, workers int) {
	if c.scheme != "sophos" && c.scheme != "diana" {
		log.Fatalf("bulk-load not supported for scheme %q", c.scheme)
	}
	var sophosCl *sophos.Client
	var dianaCl *diana.Client
	if c.scheme == "sophos" {
		ck, err := keys.OpenSophosClient(c.dir)
		if err != nil {
			log.Fatalf("open client state failed: %v", err)
		}
		sophosCl = sophos.NewClient(ck.Counters, ck.Kd, ck.Kpi, ck.SK)
	} else {
		dck, derr := keys.OpenDianaClient(c.dir)
		if derr != nil {
			log.Fatalf("open client state failed: %v", derr)
		}
		dianaCl = diana.NewClient(dck.Counters, dck.Kroot, dck.Kkw)
	}

	total := 0
	loadErr := ingest.LoadJSONFile(path, workers, func(keyword string, docID uint64) {
		if sophosCl != nil {
			msg, err := sophosCl.Update([]byte(keyword), docID)
			if err != nil {
				log.Printf("update failed for %q: %v", keyword, err)
				return
			}
			if _, err := c.post("/api/v1/update", models.UpdateRequest{UpdateToken: msg.U[:], Index: msg.E[:]}); err != nil {
				log.Printf("server update failed for %q: %v", keyword, err)
				return
			}
		} else {
			msg, err := dianaCl.Update([]byte(keyword), docID)
			if err != nil {
				log.Printf("update failed for %q: %v", keyword, err)
				return
			}
			if _, err := c.post("/api/v1/update", models.UpdateRequest{UpdateToken: msg.U[:], Index: msg.E[:]}); err != nil {
				log.Printf("server update failed for %q: %v", keyword, err)
				return
			}
		}
		total++
	})
	if loadErr != nil {
		log.Fatalf("bulk load failed: %v", loadErr)
	}
	log.Printf("bulk-loaded %d postings from %s", total, path)
}

func (c *client) runSearch(w string) {
	switch c.scheme {
	case "sophos":
		ck, err := keys.OpenSophosClient(c.dir)
		if err != nil {
			log.Fatalf("open client state failed: %v", err)
		}
		cl := sophos.NewClient(ck.Counters, ck.Kd, ck.Kpi, ck.SK)
		req, found, err := cl.SearchRequestFor([]byte(w))
		if err != nil {
			log.Fatalf("search request failed: %v", err)
		}
		if !found {
			fmt.Println("[]")
			return
		}
		body := models.SophosSearchRequest{
			AddCount:      req.AddCount,
			DerivationKey: req.Kw[:],
			SearchToken:   req.STop[:],
		}
		resp, err := c.post("/api/v1/search", body)
		if err != nil {
			log.Fatalf("search failed: %v", err)
		}
		fmt.Println(string(resp))
	case "diana":
		ck, err := keys.OpenDianaClient(c.dir)
		if err != nil {
			log.Fatalf("open client state failed: %v", err)
		}
		cl := diana.NewClient(ck.Counters, ck.Kroot, ck.Kkw)
		req, found := cl.SearchRequestFor([]byte(w))
		if !found {
			fmt.Println("[]")
			return
		}
		covering := make([]models.CoveringNode, len(req.Covering))
		for i, n := range req.Covering {
			covering[i] = models.CoveringNode{Token: n.Key[:], Depth: n.Depth}
		}
		body := models.DianaSearchRequest{
			AddCount: req.AddCount,
			KwToken:  req.KwToken[:],
			Covering: covering,
		}
		resp, err := c.post("/api/v1/search", body)
		if err != nil {
			log.Fatalf("search failed: %v", err)
		}
		fmt.Println(string(resp))
	default:
		log.Fatalf("search CLI not implemented for scheme %q", c.scheme)
	}
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
