package blockstore

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/prism-dag/prismd/domain/consensus/model"
	"github.com/prism-dag/prismd/domain/consensus/model/externalapi"
	"github.com/prism-dag/prismd/domain/consensus/utils/hashset"
)

// orphanBlock represents a block that we don't yet have every dependency
// for. It is a normal block plus an expiration time to prevent caching the
// orphan forever.
type orphanBlock struct {
	hash       *externalapi.DomainHash
	block      *externalapi.DomainBlock
	missing    hashset.HashSet
	sequence   uint64
	expiration time.Time
}

func orphanLess(a, b *orphanBlock) bool {
	return a.sequence < b.sequence
}

type orphanPool struct {
	lock       sync.Mutex
	maxOrphans int
	expiration time.Duration
	timeNow    func() time.Time

	orphans map[externalapi.DomainHash]*orphanBlock

	// waiting indexes orphans by every dependency they still miss
	waiting map[externalapi.DomainHash][]*orphanBlock

	// byAge orders orphans by arrival so the oldest can be evicted
	byAge        *btree.BTreeG[*orphanBlock]
	nextSequence uint64
}

// NewOrphanPool instantiates an OrphanPool holding at most maxOrphans blocks
// for at most expiration each.
func NewOrphanPool(maxOrphans int, expiration time.Duration) model.OrphanPool {
	return newOrphanPool(maxOrphans, expiration, time.Now)
}

func newOrphanPool(maxOrphans int, expiration time.Duration, timeNow func() time.Time) *orphanPool {
	return &orphanPool{
		maxOrphans: maxOrphans,
		expiration: expiration,
		timeNow:    timeNow,
		orphans:    make(map[externalapi.DomainHash]*orphanBlock),
		waiting:    make(map[externalapi.DomainHash][]*orphanBlock),
		byAge:      btree.NewG[*orphanBlock](8, orphanLess),
	}
}

// Add adds the passed block, which is missing the given dependencies, to the
// orphan pool. It lazily cleans up any expired blocks and evicts the oldest
// orphans while the pool is over capacity. The hashes of the dropped
// orphans are returned.
func (op *orphanPool) Add(blockHash *externalapi.DomainHash, block *externalapi.DomainBlock,
	missing []*externalapi.DomainHash) []*externalapi.DomainHash {

	op.lock.Lock()
	defer op.lock.Unlock()

	if _, ok := op.orphans[*blockHash]; ok {
		return nil
	}

	dropped := op.expireOrphans()

	orphan := &orphanBlock{
		hash:       blockHash,
		block:      block,
		missing:    hashset.NewFromSlice(missing...),
		sequence:   op.nextSequence,
		expiration: op.timeNow().Add(op.expiration),
	}
	op.nextSequence++
	op.orphans[*blockHash] = orphan
	op.byAge.ReplaceOrInsert(orphan)
	for dependency := range orphan.missing {
		op.waiting[dependency] = append(op.waiting[dependency], orphan)
	}

	for len(op.orphans) > op.maxOrphans {
		oldest, ok := op.byAge.Min()
		if !ok {
			break
		}
		op.remove(oldest)
		log.Warnf("OrphanDropped: evicted orphan block %s, the orphan pool is full (%d blocks)",
			oldest.hash, op.maxOrphans)
		dropped = append(dropped, oldest.hash)
	}

	return dropped
}

// Has returns whether the passed hash is currently a known orphan.
func (op *orphanPool) Has(blockHash *externalapi.DomainHash) bool {
	op.lock.Lock()
	defer op.lock.Unlock()

	_, ok := op.orphans[*blockHash]
	return ok
}

// Count returns the number of orphans in the pool
func (op *orphanPool) Count() int {
	op.lock.Lock()
	defer op.lock.Unlock()

	return len(op.orphans)
}

// ResolveDependency marks dependency as connected. It returns the orphans
// that have no missing dependencies left, removed from the pool, in the
// order they arrived.
func (op *orphanPool) ResolveDependency(dependency *externalapi.DomainHash) []*model.OrphanBlock {
	op.lock.Lock()
	defer op.lock.Unlock()

	waiting := op.waiting[*dependency]
	delete(op.waiting, *dependency)

	var resolved []*model.OrphanBlock
	for _, orphan := range waiting {
		orphan.missing.Remove(dependency)
		if len(orphan.missing) > 0 {
			continue
		}
		op.remove(orphan)
		resolved = append(resolved, &model.OrphanBlock{Hash: orphan.hash, Block: orphan.block})
	}
	return resolved
}

// ExpireOrphans removes the orphans whose expiration has passed
func (op *orphanPool) ExpireOrphans() []*externalapi.DomainHash {
	op.lock.Lock()
	defer op.lock.Unlock()

	return op.expireOrphans()
}

// expireOrphans MUST be called with the lock held.
func (op *orphanPool) expireOrphans() []*externalapi.DomainHash {
	var expired []*externalapi.DomainHash
	now := op.timeNow()
	for {
		oldest, ok := op.byAge.Min()
		if !ok || !now.After(oldest.expiration) {
			return expired
		}
		op.remove(oldest)
		log.Warnf("OrphanDropped: orphan block %s expired", oldest.hash)
		expired = append(expired, oldest.hash)
	}
}

// remove MUST be called with the lock held.
func (op *orphanPool) remove(orphan *orphanBlock) {
	delete(op.orphans, *orphan.hash)
	op.byAge.Delete(orphan)

	// Remove the reference from the dependency index too.
	for dependency := range orphan.missing {
		// An indexing for loop is intentionally used over a range here as range
		// does not reevaluate the slice on each iteration nor does it adjust the
		// index for the modified slice.
		orphans := op.waiting[dependency]
		for i := 0; i < len(orphans); i++ {
			if orphans[i] == orphan {
				orphans = append(orphans[:i], orphans[i+1:]...)
				i--
			}
		}

		// Remove the map entry altogether if there are no longer any orphans
		// which depend on the dependency.
		if len(orphans) == 0 {
			delete(op.waiting, dependency)
			continue
		}
		op.waiting[dependency] = orphans
	}
}
