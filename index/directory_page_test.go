package index

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratumdb/stratum/storage/disk"
)

func TestDirectoryPage(t *testing.T) {
	t.Run("a zeroed page decodes to an empty directory", func(t *testing.T) {
		dir, err := loadDirectoryPage(make([]byte, disk.PAGE_SIZE))
		assert.NoError(t, err)

		_, ok := dir.getRecord("orders")
		assert.False(t, ok)
	})

	t.Run("records survive an encode and decode cycle", func(t *testing.T) {
		data := make([]byte, disk.PAGE_SIZE)

		dir, err := loadDirectoryPage(data)
		assert.NoError(t, err)
		dir.insertRecord("orders", 3)
		dir.insertRecord("users", 9)
		assert.NoError(t, dir.save(data))

		loaded, err := loadDirectoryPage(data)
		assert.NoError(t, err)

		rootPageId, ok := loaded.getRecord("orders")
		assert.True(t, ok)
		assert.Equal(t, int64(3), rootPageId)

		rootPageId, ok = loaded.getRecord("users")
		assert.True(t, ok)
		assert.Equal(t, int64(9), rootPageId)
	})

	t.Run("updating a record replaces its root", func(t *testing.T) {
		data := make([]byte, disk.PAGE_SIZE)

		dir, err := loadDirectoryPage(data)
		assert.NoError(t, err)
		dir.insertRecord("orders", 3)
		dir.updateRecord("orders", 12)
		assert.NoError(t, dir.save(data))

		loaded, err := loadDirectoryPage(data)
		assert.NoError(t, err)
		rootPageId, _ := loaded.getRecord("orders")
		assert.Equal(t, int64(12), rootPageId)
	})
}
