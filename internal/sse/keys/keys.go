// Package keys implements key management & persistence: per-scheme
// directory layouts holding raw key bytes and a counter-map subdirectory,
// loaded on open and generated once on setup.
//
// Each scheme's client/server constructor takes a directory path, tests
// each required file for existence, and either loads or
// generates-and-writes on first use; the 0700 permission and setup-once
// guard follow the same fail-loudly-on-missing-state discipline used for
// environment variables elsewhere in this codebase, generalized to a
// directory instead.
package keys

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/counter"
	sophcrypto "github.com/OpenSSE/opensse-schemes-sub000/internal/sse/crypto"
	"github.com/OpenSSE/opensse-schemes-sub000/internal/sse/sseerr"
)

const dirPerm = 0700

// NewSessionID returns a fresh request-correlation ID for a streaming
// session, such as a websocket search-reply stream.
func NewSessionID() string {
	return uuid.NewString()
}

// readVarKeyFile reads a key file of unspecified (non-fixed) length, such
// as tdp_sk.key's DER encoding.
func readVarKeyFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("keys: %s: %w", filepath.Base(path), sseerr.ErrMissingState)
	}
	if err != nil {
		return nil, fmt.Errorf("keys: cannot read %s: %w: %v", filepath.Base(path), sseerr.ErrStorageUnavailable, err)
	}
	return b, nil
}

// readKeyFile reads a fixed-length key file, raising CorruptState if its
// length doesn't match size.
func readKeyFile(path string, size int) ([]byte, error) {
	b, err := readVarKeyFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("keys: %s has length %d, want %d: %w", filepath.Base(path), len(b), size, sseerr.ErrCorruptState)
	}
	return b, nil
}

func writeKeyFile(path string, b []byte) error {
	if err := os.WriteFile(path, b, 0600); err != nil {
		return fmt.Errorf("keys: cannot write %s: %w: %v", filepath.Base(path), sseerr.ErrStorageUnavailable, err)
	}
	return nil
}

func randomKey(size int) ([]byte, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("keys: CSPRNG read failed: %v", err)
	}
	return b, nil
}

// exists reports whether path names an existing file or directory.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ---------------------------------------------------------------------
// Sophos
// ---------------------------------------------------------------------

// SophosClientKeys holds a loaded/generated Sophos client's full key
// material: the TDP private key, the derivation key K_d, the PRG key K_π,
// and the counter map.
type SophosClientKeys struct {
	SK       *sophcrypto.TdpPrivateKey
	Kd       []byte
	Kpi      []byte
	Counters *counter.Map
}

func sophosPaths(dir string) (sk, kd, kpi, counters string) {
	return filepath.Join(dir, "tdp_sk.key"),
		filepath.Join(dir, "derivation_master.key"),
		filepath.Join(dir, "rsa_prg.key"),
		filepath.Join(dir, "counters.dat")
}

// OpenSophosClient loads an existing Sophos client directory. Any required
// file absent is MissingState; a wrong-length key file is CorruptState.
func OpenSophosClient(dir string) (*SophosClientKeys, error) {
	skPath, kdPath, kpiPath, countersPath := sophosPaths(dir)

	skDER, err := readVarKeyFile(skPath)
	if err != nil {
		return nil, err
	}
	sk, err := sophcrypto.UnmarshalTDPPrivateKey(skDER)
	if err != nil {
		return nil, err
	}

	kd, err := readKeyFile(kdPath, sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	kpi, err := readKeyFile(kpiPath, sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	if !exists(countersPath) {
		return nil, fmt.Errorf("keys: counters.dat: %w", sseerr.ErrMissingState)
	}
	counters, err := counter.Open(filepath.Join(countersPath, "log"))
	if err != nil {
		return nil, err
	}

	return &SophosClientKeys{SK: sk, Kd: kd, Kpi: kpi, Counters: counters}, nil
}

// SetupSophosClient generates a fresh Sophos client directory: a new TDP
// keypair and K_d/K_π from the system CSPRNG, written under dir with 0700
// permissions. Refuses to overwrite an already-initialized directory.
func SetupSophosClient(dir string) (*SophosClientKeys, error) {
	if exists(dir) {
		return nil, fmt.Errorf("keys: %s already initialized: %w", dir, sseerr.ErrInvalidStateTransition)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("keys: cannot create %s: %w: %v", dir, sseerr.ErrStorageUnavailable, err)
	}

	sk, err := sophcrypto.GenerateTDP()
	if err != nil {
		return nil, fmt.Errorf("keys: TDP setup failed: %v", err)
	}
	kd, err := randomKey(sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	kpi, err := randomKey(sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}

	skPath, kdPath, kpiPath, countersPath := sophosPaths(dir)
	if err := writeKeyFile(skPath, sk.Marshal()); err != nil {
		return nil, err
	}
	if err := writeKeyFile(kdPath, kd); err != nil {
		return nil, err
	}
	if err := writeKeyFile(kpiPath, kpi); err != nil {
		return nil, err
	}
	counters, err := counter.Open(filepath.Join(countersPath, "log"))
	if err != nil {
		return nil, err
	}

	return &SophosClientKeys{SK: sk, Kd: kd, Kpi: kpi, Counters: counters}, nil
}

// OpenSophosServer loads an existing Sophos server directory: just the
// published public key.
func OpenSophosServer(dir string) (*sophcrypto.TdpPublicKey, error) {
	path := filepath.Join(dir, "tdp_pk.key")
	if !exists(path) {
		return nil, fmt.Errorf("keys: tdp_pk.key: %w", sseerr.ErrMissingState)
	}
	b, err := readKeyFile(path, sophcrypto.TdpDomainBytes+8)
	if err != nil {
		return nil, err
	}
	return sophcrypto.UnmarshalTDPPublicKey(b)
}

// SetupSophosServer processes the client's setup message: creates the
// server directory (0700) and persists the public key. A second setup
// call against an already-initialized directory is an
// InvalidStateTransition error.
func SetupSophosServer(dir string, pk *sophcrypto.TdpPublicKey) error {
	path := filepath.Join(dir, "tdp_pk.key")
	if exists(path) {
		return fmt.Errorf("keys: %s already initialized: %w", dir, sseerr.ErrInvalidStateTransition)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("keys: cannot create %s: %w: %v", dir, sseerr.ErrStorageUnavailable, err)
	}
	return writeKeyFile(path, pk.MarshalPublic())
}

// ---------------------------------------------------------------------
// Diana
// ---------------------------------------------------------------------

// DianaClientKeys holds a loaded/generated Diana client's key material.
type DianaClientKeys struct {
	Kroot    []byte
	Kkw      []byte
	Counters *counter.Map
}

func dianaPaths(dir string) (root, kw, counters string) {
	return filepath.Join(dir, "master_derivation.key"),
		filepath.Join(dir, "kw_token_master.key"),
		filepath.Join(dir, "counters.dat")
}

// OpenDianaClient loads an existing Diana client directory.
func OpenDianaClient(dir string) (*DianaClientKeys, error) {
	rootPath, kwPath, countersPath := dianaPaths(dir)
	kroot, err := readKeyFile(rootPath, sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	kkw, err := readKeyFile(kwPath, sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	if !exists(countersPath) {
		return nil, fmt.Errorf("keys: counters.dat: %w", sseerr.ErrMissingState)
	}
	counters, err := counter.Open(filepath.Join(countersPath, "log"))
	if err != nil {
		return nil, err
	}
	return &DianaClientKeys{Kroot: kroot, Kkw: kkw, Counters: counters}, nil
}

// SetupDianaClient generates a fresh Diana client directory.
func SetupDianaClient(dir string) (*DianaClientKeys, error) {
	if exists(dir) {
		return nil, fmt.Errorf("keys: %s already initialized: %w", dir, sseerr.ErrInvalidStateTransition)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("keys: cannot create %s: %w: %v", dir, sseerr.ErrStorageUnavailable, err)
	}
	kroot, err := randomKey(sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	kkw, err := randomKey(sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	rootPath, kwPath, countersPath := dianaPaths(dir)
	if err := writeKeyFile(rootPath, kroot); err != nil {
		return nil, err
	}
	if err := writeKeyFile(kwPath, kkw); err != nil {
		return nil, err
	}
	counters, err := counter.Open(filepath.Join(countersPath, "log"))
	if err != nil {
		return nil, err
	}
	return &DianaClientKeys{Kroot: kroot, Kkw: kkw, Counters: counters}, nil
}

// ---------------------------------------------------------------------
// Janus
// ---------------------------------------------------------------------

// JanusClientKeys holds a loaded/generated Janus client's key material:
// the single root key K_J plus the counter maps of its two inner Diana
// cores (insertion and deletion).
type JanusClientKeys struct {
	Kj          []byte
	AddCounters *counter.Map
	DelCounters *counter.Map
}

func janusPaths(dir string) (master, addCounters, delCounters string) {
	return filepath.Join(dir, "janus_master.key"),
		filepath.Join(dir, "counters_add.dat"),
		filepath.Join(dir, "counters_del.dat")
}

// OpenJanusClient loads an existing Janus client directory.
func OpenJanusClient(dir string) (*JanusClientKeys, error) {
	masterPath, addPath, delPath := janusPaths(dir)
	kj, err := readKeyFile(masterPath, sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	if !exists(addPath) || !exists(delPath) {
		return nil, fmt.Errorf("keys: counters_add.dat/counters_del.dat: %w", sseerr.ErrMissingState)
	}
	addCounters, err := counter.Open(filepath.Join(addPath, "log"))
	if err != nil {
		return nil, err
	}
	delCounters, err := counter.Open(filepath.Join(delPath, "log"))
	if err != nil {
		return nil, err
	}
	return &JanusClientKeys{Kj: kj, AddCounters: addCounters, DelCounters: delCounters}, nil
}

// SetupJanusClient generates a fresh Janus client directory.
func SetupJanusClient(dir string) (*JanusClientKeys, error) {
	if exists(dir) {
		return nil, fmt.Errorf("keys: %s already initialized: %w", dir, sseerr.ErrInvalidStateTransition)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("keys: cannot create %s: %w: %v", dir, sseerr.ErrStorageUnavailable, err)
	}
	kj, err := randomKey(sophcrypto.KeySize)
	if err != nil {
		return nil, err
	}
	masterPath, addPath, delPath := janusPaths(dir)
	if err := writeKeyFile(masterPath, kj); err != nil {
		return nil, err
	}
	addCounters, err := counter.Open(filepath.Join(addPath, "log"))
	if err != nil {
		return nil, err
	}
	delCounters, err := counter.Open(filepath.Join(delPath, "log"))
	if err != nil {
		return nil, err
	}
	return &JanusClientKeys{Kj: kj, AddCounters: addCounters, DelCounters: delCounters}, nil
}
