package bucketing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserBucketIsDeterministic(t *testing.T) {
	bm := NewBucketingManager(DefaultUserBuckets)

	a := bm.UserBucket("+15551234567")
	b := bm.UserBucket("+15551234567")
	assert.Equal(t, a, b)
}

func TestUserBucketStaysInRange(t *testing.T) {
	bm := NewBucketingManager(16)

	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		bucket := bm.UserBucket(fmt.Sprintf("+1555123%04d", i))
		assert.GreaterOrEqual(t, bucket, 0)
		assert.Less(t, bucket, 16)
		seen[bucket] = true
	}

	// 1000 phones over 16 buckets should touch most of them.
	assert.Greater(t, len(seen), 12)
}
