package chainstate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/stealth-startup/openexchange/internal/engine"
)

// codecVersion is bumped whenever the DTO layout changes incompatibly.
const codecVersion = 1

// domainSnapshot separates snapshot digests from any other hash.
const domainSnapshot = "openexchange/chained-state/v1"

type envelope struct {
	Version int             `json:"version"`
	Height  int64           `json:"height"`
	Digest  string          `json:"digest"`
	State   json.RawMessage `json:"state"`
}

// Encode serializes s into a self-verifying snapshot. A state that cannot
// be serialized is reported as an engine.ConsistencyError with code
// SNAPSHOT_ENCODE; encoding it again would fail the same way.
func Encode(s *ChainedState) ([]byte, error) {
	body, err := json.Marshal(toStateDTO(s))
	if err != nil {
		return nil, unencodable(s.Height(), err)
	}
	data, err := json.Marshal(envelope{
		Version: codecVersion,
		Height:  s.Height(),
		Digest:  hashWithDomain(domainSnapshot, body),
		State:   body,
	})
	if err != nil {
		return nil, unencodable(s.Height(), err)
	}
	return data, nil
}

// Decode parses and verifies a snapshot. Any failure is reported as an
// engine.ConsistencyError with code SNAPSHOT_CORRUPT.
func Decode(data []byte) (*ChainedState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, corrupt(0, "envelope: %v", err)
	}
	if env.Version != codecVersion {
		return nil, corrupt(env.Height, "unsupported version %d", env.Version)
	}
	if got := hashWithDomain(domainSnapshot, env.State); got != env.Digest {
		return nil, corrupt(env.Height, "digest %s does not match recorded %s", got, env.Digest)
	}

	var dto stateDTO
	dec := json.NewDecoder(bytes.NewReader(env.State))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dto); err != nil {
		return nil, corrupt(env.Height, "state: %v", err)
	}
	s, err := dto.state()
	if err != nil {
		return nil, corrupt(env.Height, "%v", err)
	}
	if s.Height() != env.Height {
		return nil, corrupt(env.Height, "envelope height differs from state height %d", s.Height())
	}
	return s, nil
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func corrupt(height int64, format string, args ...any) *engine.ConsistencyError {
	return &engine.ConsistencyError{
		Code:    engine.ErrCodeSnapshotCorrupt,
		Message: fmt.Sprintf(format, args...),
		Height:  height,
	}
}

func unencodable(height int64, err error) *engine.ConsistencyError {
	return &engine.ConsistencyError{
		Code:    engine.ErrCodeSnapshotEncode,
		Message: fmt.Sprintf("encode state: %v", err),
		Height:  height,
		Cause:   err,
	}
}
