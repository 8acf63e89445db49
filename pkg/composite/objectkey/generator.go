package objectkey

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/tendant/simple-composite/pkg/composite"
)

const extension = ".cbor"

// FlatGenerator puts every snapshot directly under Prefix
// Structure: {prefix}/o0123456789abcdef.cbor
type FlatGenerator struct {
	Prefix string
}

func NewFlatGenerator(prefix string) *FlatGenerator {
	return &FlatGenerator{Prefix: sanitizePathComponent(prefix)}
}

func (g *FlatGenerator) GenerateKey(id composite.ObjectID) string {
	return join(g.Prefix, id.String()+extension)
}

// GitLikeGenerator provides Git-style sharded storage. Identifiers start with
// a timestamp, so the shard is taken from their last hex digits.
// Structure: {prefix}/objects/ef/o0123456789abcdef.cbor
type GitLikeGenerator struct {
	Prefix string
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewGitLikeGenerator(prefix string) *GitLikeGenerator {
	return &GitLikeGenerator{
		Prefix:      sanitizePathComponent(prefix),
		ShardLength: 2,
	}
}

func (g *GitLikeGenerator) GenerateKey(id composite.ObjectID) string {
	s := id.String()
	n := clampShard(g.ShardLength, len(s)-1)
	shard := s[len(s)-n:]
	return join(g.Prefix, "objects", shard, s+extension)
}

// HashedGenerator shards on a SHA-256 of the identifier for an even spread
// regardless of how identifiers are allocated.
// Structure: {prefix}/objects/3f/o0123456789abcdef.cbor
type HashedGenerator struct {
	Prefix      string
	ShardLength int
}

func NewHashedGenerator(prefix string) *HashedGenerator {
	return &HashedGenerator{
		Prefix:      sanitizePathComponent(prefix),
		ShardLength: 2,
	}
}

func (g *HashedGenerator) GenerateKey(id composite.ObjectID) string {
	s := id.String()
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
	shard := hash[:clampShard(g.ShardLength, len(hash))]
	return join(g.Prefix, "objects", shard, s+extension)
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(id composite.ObjectID) string
}

func NewCustomFuncGenerator(fn func(id composite.ObjectID) string) *CustomFuncGenerator {
	return &CustomFuncGenerator{
		GenerateFunc: fn,
	}
}

func (g *CustomFuncGenerator) GenerateKey(id composite.ObjectID) string {
	return g.GenerateFunc(id)
}

// NewGenerator returns the generator called name: "flat", "git-like" or
// "hashed". An empty name selects the recommended generator.
func NewGenerator(name, prefix string) (composite.KeyGenerator, error) {
	switch strings.ToLower(name) {
	case "", "git-like", "gitlike":
		return NewGitLikeGenerator(prefix), nil
	case "flat":
		return NewFlatGenerator(prefix), nil
	case "hashed":
		return NewHashedGenerator(prefix), nil
	default:
		return nil, fmt.Errorf("unknown key generator %q", name)
	}
}

func clampShard(n, max int) int {
	if n <= 0 {
		n = 2
	}
	if n > max {
		n = max
	}
	return n
}

func join(parts ...string) string {
	nonEmpty := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, strings.Trim(p, "/"))
		}
	}
	return strings.Join(nonEmpty, "/")
}

func sanitizePathComponent(component string) string {
	replacer := strings.NewReplacer(
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
		"..", "_",
	)
	return strings.Trim(strings.ToLower(replacer.Replace(component)), "/")
}
