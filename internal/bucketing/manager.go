package bucketing

import (
	"hash"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultUserBuckets spreads the users table across partitions; changing it
// on a populated keyspace requires a data migration.
const DefaultUserBuckets = 64

// BucketingManager derives stable partition buckets from phone numbers so one
// hot prefix never lands on a single Scylla partition.
type BucketingManager struct {
	userBuckets int
	hasherPool  sync.Pool
}

func NewBucketingManager(userBuckets int) *BucketingManager {
	if userBuckets <= 0 {
		userBuckets = DefaultUserBuckets
	}

	bm := &BucketingManager{userBuckets: userBuckets}
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}
	return bm
}

// UserBucket returns a consistent bucket in [0, userBuckets) for a phone.
func (bm *BucketingManager) UserBucket(phone string) int {
	return int(bm.hashKey(phone) % uint64(bm.userBuckets))
}

func (bm *BucketingManager) UserBuckets() int {
	return bm.userBuckets
}

func (bm *BucketingManager) hashKey(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
