package cache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter"

	"github.com/rafaeljc/skuld/internal/ruleengine"
)

// RuleCache is an in-memory cache of compiled rule ASTs, keyed by tag id and
// rule-set version. Rule JSON only changes with a version bump, so a hot
// session does not recompile identical rules on every heartbeat; a version
// bump changes the key and the stale entry ages out via TTL.
type RuleCache struct {
	store otter.Cache[string, *ruleengine.Rule]
}

// NewRuleCache initializes the compiled-rule cache with a hard item cap and
// a TTL safety net.
func NewRuleCache(capacity int, ttl time.Duration) (*RuleCache, error) {
	builder := otter.MustBuilder[string, *ruleengine.Rule](capacity).
		WithTTL(ttl)

	store, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &RuleCache{store: store}, nil
}

// Key builds the cache key for one tag at one rule-set version.
func (c *RuleCache) Key(tagID int64, ruleSetVersion int) string {
	return fmt.Sprintf("%d:%d", tagID, ruleSetVersion)
}

// Get retrieves a compiled rule. The rule is shared and must be treated as
// immutable by callers.
func (c *RuleCache) Get(key string) (*ruleengine.Rule, bool) {
	return c.store.Get(key)
}

// Set stores a compiled rule under the given key.
func (c *RuleCache) Set(key string, rule *ruleengine.Rule) {
	c.store.Set(key, rule)
}

// Close shuts down the cache's background cleanup goroutines.
func (c *RuleCache) Close() {
	c.store.Close()
}
