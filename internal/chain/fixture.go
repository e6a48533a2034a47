package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// fixtureFile is the on-disk layout of a block fixture:
//
//	previous_hash: 000000000000000e7ad6...
//	blocks:
//	  - height: 240001
//	    timestamp: 2013-06-01T00:00:00Z
//	    transactions:
//	      - hash: t1
//	        inputs: [mmy8qpLmZoxe1rSynrnx7k1XwHDm3BKpeQ]
//	        outputs:
//	          - {address: mptmhH4UzgS3cJ35qmjqNaGWa15UPoE3fy, amount: 100005000}
//
// Blocks without a hash get a synthetic one; blocks without previous_hash
// chain onto the block before them.
type fixtureFile struct {
	PreviousHash string  `yaml:"previous_hash"`
	Blocks       []Block `yaml:"blocks"`
}

// LoadFixture reads a YAML block fixture into a MemorySource.
func LoadFixture(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	src, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return src, nil
}

// ParseFixture decodes a YAML block fixture.
func ParseFixture(data []byte) (*MemorySource, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	blocks, err := LinkBlocks(f.PreviousHash, f.Blocks)
	if err != nil {
		return nil, err
	}
	return NewMemorySource(blocks...), nil
}

// LinkBlocks fills in missing hashes and previous hashes so that blocks form
// a chain starting on top of previousHash. Heights must be consecutive.
func LinkBlocks(previousHash string, blocks []Block) ([]Block, error) {
	out := make([]Block, len(blocks))
	prev := previousHash
	for i, b := range blocks {
		if i > 0 && b.Height != out[i-1].Height+1 {
			return nil, fmt.Errorf("block %d: height %d does not follow %d", i, b.Height, out[i-1].Height)
		}
		if b.PreviousHash == "" {
			b.PreviousHash = prev
		}
		if b.Hash == "" {
			b.Hash = SyntheticHash(b.PreviousHash, b.Height)
		}
		b.Timestamp = b.Timestamp.UTC()
		out[i] = b
		prev = b.Hash
	}
	return out, nil
}

// SyntheticHash derives a stable block hash for fixtures.
func SyntheticHash(previousHash string, height int64) string {
	sum := sha256.Sum256([]byte(previousHash + "/" + strconv.FormatInt(height, 10)))
	return hex.EncodeToString(sum[:])
}
