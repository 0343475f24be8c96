// Package ingest is the out-of-core-scope data-loading collaborator: a
// thin JSON inverted-index loader and a synthetic benchmark dataset
// generator, gated behind an ENABLE_SYNTHETIC flag.
//
// Both use a callback-per-(keyword, doc_id) streaming interface. The JSON
// loader invokes it concurrently from a fixed worker pool; the synthetic
// generator invokes it sequentially from one loop, producing a
// percent-based keyword-group distribution (0.1%/1%/10% of the corpus) in
// simplified form — three keyword groups instead of a larger nested set,
// since their only purpose is varying per-keyword posting-list length for
// benchmarking, not functional behavior.
package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"sync"
)

// LoadJSON streams a JSON document of the shape
// { "keyword_1": [doc_id, ...], "keyword_2": [...], ... } from r, invoking
// callback once per (keyword, doc_id) pair. callback may be invoked
// concurrently if workers > 1 (spec §6: "callbacks may be issued
// concurrently if the client uses a thread pool").
func LoadJSON(r io.Reader, workers int, callback func(keyword string, docID uint64)) error {
	dec := json.NewDecoder(bufio.NewReader(r))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("ingest: cannot read opening token: %v", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("ingest: expected a top-level JSON object")
	}

	if workers <= 0 {
		workers = 1
	}

	type job struct {
		keyword string
		ids     []uint64
	}
	jobs := make(chan job, workers*2)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				for _, id := range j.ids {
					callback(j.keyword, id)
				}
			}
		}()
	}

	var decodeErr error
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			decodeErr = fmt.Errorf("ingest: cannot read keyword: %v", err)
			break
		}
		keyword, ok := keyTok.(string)
		if !ok {
			decodeErr = fmt.Errorf("ingest: expected string keyword, got %v", keyTok)
			break
		}

		var ids []uint64
		if err := dec.Decode(&ids); err != nil {
			decodeErr = fmt.Errorf("ingest: cannot decode posting list for %q: %v", keyword, err)
			break
		}
		jobs <- job{keyword: keyword, ids: ids}
	}
	close(jobs)
	wg.Wait()

	return decodeErr
}

// LoadJSONFile is a convenience wrapper around LoadJSON for a path on disk.
func LoadJSONFile(path string, workers int, callback func(keyword string, docID uint64)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("ingest: cannot open %s: %v", path, err)
	}
	defer f.Close()
	return LoadJSON(f, workers, callback)
}

const (
	group01PercentBase = "0.1"
	group1PercentBase  = "1"
	group10PercentBase = "10"
)

// GenerateSynthetic builds a benchmark dataset: for each of n synthetic
// documents, emits postings against a handful of keyword groups of
// varying selectivity (0.1%, 1%, 10% of the corpus), exercising the full
// range of posting-list lengths Sophos/Diana/Janus are benchmarked
// against. Gated by ENABLE_SYNTHETIC at the call site (see
// IsSyntheticEnabled).
func GenerateSynthetic(n uint64, callback func(keyword string, docID uint64)) {
	for ind := uint64(0); ind < n; ind++ {
		ind01 := ind % 1000
		ind1 := ind01 % 100
		ind10 := ind1 % 10

		callback(group01PercentBase+"_"+strconv.FormatUint(ind01, 10), ind)
		callback(group1PercentBase+"_"+strconv.FormatUint(ind1, 10), ind)
		callback(group10PercentBase+"_"+strconv.FormatUint(ind10, 10), ind)

		if ind != 0 && ind%1000 == 0 {
			log.Printf("[Ingest] synthetic generation: %d documents generated", ind)
		}
	}
}

// IsSyntheticEnabled returns true if ENABLE_SYNTHETIC=true is set, gating
// synthetic dataset generation behind an explicit opt-in.
func IsSyntheticEnabled() bool {
	return os.Getenv("ENABLE_SYNTHETIC") == "true"
}
