package cache

import (
	"fmt"
	"time"

	"github.com/mohitkumar/chatflow/flow"
	c "github.com/patrickmn/go-cache"
)

// FlowCache holds compiled flows by name and version. Versions are immutable so
// entries never go stale.
type FlowCache struct {
	cache *c.Cache
}

func NewFlowCache() *FlowCache {
	return &FlowCache{
		cache: c.New(c.NoExpiration, 10*time.Minute),
	}
}

func key(name string, version int) string {
	return fmt.Sprintf("%s:%d", name, version)
}

func (ch *FlowCache) SaveFlow(fl *flow.Flow) {
	ch.cache.Set(key(fl.Name(), fl.Version()), fl, c.NoExpiration)
}

func (ch *FlowCache) GetFlow(name string, version int) (*flow.Flow, bool) {
	v, found := ch.cache.Get(key(name, version))
	if !found {
		return nil, false
	}
	fl, ok := v.(*flow.Flow)
	return fl, ok
}

func (ch *FlowCache) DeleteFlow(name string, version int) {
	ch.cache.Delete(key(name, version))
}

func (ch *FlowCache) Count() int {
	return ch.cache.ItemCount()
}
