// Package models holds the wire-shape types exchanged between client and
// server: JSON request/reply bodies for setup, update, bulk-update, and
// search, one set per scheme. Exported at pkg/ scope, mirroring the
// teacher's pkg/models layout, so a client written against this module
// (or a test harness) can depend on the wire contract without importing
// internal/sse/api's server-side handler code.
package models

// SophosSetupRequest carries the client's published TDP public key to the
// server so it can be bound into a fresh Sophos server instance.
type SophosSetupRequest struct {
	PublicKey []byte `json:"public_key"`
}

// UpdateRequest is the wire shape of a single Sophos/Diana update: an
// update token plus the masked payload e, not a plaintext document id.
type UpdateRequest struct {
	UpdateToken []byte `json:"update_token"`
	Index       []byte `json:"index"`
}

// SophosSearchRequest is the wire shape of a Sophos search request. The
// derivation key is carried at its true 32-byte width, the width of the
// per-keyword PRF key it actually holds.
type SophosSearchRequest struct {
	AddCount      uint32 `json:"add_count"`
	DerivationKey []byte `json:"derivation_key"`
	SearchToken   []byte `json:"search_token"`
	Session       string `json:"session,omitempty"`
}

// DianaSetupRequest carries the server's wrapping key. Unused by the
// explicit-covering-list encoding this repo implements, kept for
// wire-contract completeness.
type DianaSetupRequest struct {
	WrappingKey []byte `json:"wrapping_key"`
}

// CoveringNode is one entry of a Diana covering list: a token tree node
// key paired with its depth.
type CoveringNode struct {
	Token []byte `json:"token"`
	Depth uint8  `json:"depth"`
}

// DianaSearchRequest is the wire shape of a Diana search request.
type DianaSearchRequest struct {
	AddCount uint32         `json:"add_count"`
	KwToken  []byte         `json:"kw_token"`
	Covering []CoveringNode `json:"covering"`
	Session  string         `json:"session,omitempty"`
}

// JanusUpdateRequest is the wire shape of a single Janus insertion or
// deletion: an update token plus a scheme-dependent payload (a
// puncturable-encryption ciphertext for insertions, a key share for
// deletions). Keyword carries the plaintext keyword for a deletion so the
// server can evict that keyword's cached punctured key; it is left empty
// on insertions, which need no cache eviction.
type JanusUpdateRequest struct {
	UpdateToken []byte `json:"update_token"`
	Payload     []byte `json:"payload"`
	Keyword     []byte `json:"keyword,omitempty"`
}

// JanusSearchRequest is the wire shape of a Janus search request: a pair
// of Diana search requests (one over the addition index, one over the
// deletion index) plus the initial key share needed to walk the
// puncturable-encryption chain.
type JanusSearchRequest struct {
	Keyword    []byte             `json:"keyword"`
	Add        DianaSearchRequest `json:"add"`
	Del        DianaSearchRequest `json:"del"`
	DelFound   bool               `json:"del_found"`
	FirstShare []byte             `json:"first_share"`
	Session    string             `json:"session,omitempty"`
}

// SearchReply is the non-streaming form of a search reply: the full
// posting list, for callers that did not attach a websocket session.
type SearchReply struct {
	Postings []uint64 `json:"postings"`
	Missing  int      `json:"missing_count"`
}
