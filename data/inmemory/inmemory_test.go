package inmemory

import (
	"context"
	"sync"
	"testing"

	"github.com/haydenwoodhead/autointern/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryDB(t *testing.T) {
	db := GetInMemoryDB()

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}
}

func TestInMemory_ConcurrentSendRecords(t *testing.T) {
	db := GetInMemoryDB()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := db.SaveSendRecord(ctx, data.SendRecord{
				ID:        string(rune('A' + i)),
				UserID:    "user",
				Channel:   data.ChannelPlatform,
				Status:    data.StatusSent,
				CreatedAt: int64(i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := db.CountSentSince(ctx, "user", data.ChannelPlatform, 0)
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}
