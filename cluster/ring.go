package cluster

import (
	"sort"
	"sync"

	"github.com/buraksezer/consistent"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"
)

type hasher struct {
}

func NewHasher() *hasher {
	return &hasher{}
}

func (h hasher) Sum64(data []byte) uint64 {
	return murmur3.Sum64(data)
}

type RingConfig struct {
	PartitionCount int
}

type Member string

func (m Member) String() string {
	return string(m)
}

// Ring maps contact ids onto a fixed number of queue partitions and tracks which
// partitions this node polls.
type Ring struct {
	RingConfig
	hring     *consistent.Consistent
	localNode Member
	members   map[string]Member
	mu        sync.RWMutex
}

func NewRing(c RingConfig) *Ring {
	if c.PartitionCount <= 0 {
		c.PartitionCount = 71
	}
	cfg := consistent.Config{
		PartitionCount:    c.PartitionCount,
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            NewHasher(),
	}
	return &Ring{
		RingConfig: c,
		hring:      consistent.New(nil, cfg),
		members:    make(map[string]Member),
	}
}

func (r *Ring) Join(name string, isLocal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[name]; ok {
		return
	}
	logger.Info("adding member to ring", zap.String("node", name), zap.Bool("local", isLocal))
	member := Member(name)
	if isLocal {
		r.localNode = member
	}
	r.members[name] = member
	r.hring.Add(member)
}

func (r *Ring) Leave(name string) {
	logger.Info("removing member from ring", zap.String("node", name))
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, name)
	r.hring.Remove(name)
}

// GetPartition returns the queue partition of a contact. All work for one contact
// lands on the same partition.
func (r *Ring) GetPartition(key string) int {
	return r.hring.FindPartitionID([]byte(key))
}

// GetPartitions returns the partitions owned by the local node.
func (r *Ring) GetPartitions() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	partitions := make([]int, 0)
	if len(r.members) == 0 {
		return partitions
	}
	for i := 0; i < r.PartitionCount; i++ {
		owner := r.hring.GetPartitionOwner(i)
		if owner.String() == r.localNode.String() {
			partitions = append(partitions, i)
		}
	}
	sort.Ints(partitions)
	return partitions
}
