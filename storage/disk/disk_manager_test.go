package disk

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiskManager(t *testing.T) {
	t.Run("round trips a page", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		data := make([]byte, PAGE_SIZE)
		copy(data, []byte("hello, world!"))
		assert.NoError(t, diskMgr.WritePage(1, data))

		buf := make([]byte, PAGE_SIZE)
		assert.NoError(t, diskMgr.ReadPage(1, buf))
		assert.Equal(t, data, buf)
	})

	t.Run("a never-written page reads back as zeroes", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		buf := make([]byte, PAGE_SIZE)
		assert.NoError(t, diskMgr.ReadPage(5, buf))
		assert.Equal(t, make([]byte, PAGE_SIZE), buf)
	})

	t.Run("allocation starts above the reserved pages", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		assert.Equal(t, int64(1), diskMgr.AllocatePage())
		assert.Equal(t, int64(2), diskMgr.AllocatePage())
		assert.Equal(t, int64(3), diskMgr.AllocatePage())
	})

	t.Run("deallocated ids are handed out again", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		first := diskMgr.AllocatePage()
		second := diskMgr.AllocatePage()
		diskMgr.DeallocatePage(first)

		assert.Equal(t, first, diskMgr.AllocatePage())
		assert.Equal(t, second+1, diskMgr.AllocatePage())
	})

	t.Run("deallocated slots are reused for new pages", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		data := make([]byte, PAGE_SIZE)
		copy(data, []byte("old"))
		assert.NoError(t, diskMgr.WritePage(1, data))

		oldOffset := diskMgr.offsets[1]
		diskMgr.DeallocatePage(1)

		copy(data, []byte("new"))
		assert.NoError(t, diskMgr.WritePage(7, data))
		assert.Equal(t, oldOffset, diskMgr.offsets[7])

		buf := make([]byte, PAGE_SIZE)
		assert.NoError(t, diskMgr.ReadPage(7, buf))
		assert.Equal(t, "new", string(bytes.Trim(buf, "\x00")))
	})

	t.Run("the db file grows past its initial capacity", func(t *testing.T) {
		diskMgr := NewManager(createDbFile(t))

		data := make([]byte, PAGE_SIZE)
		for pageId := int64(0); pageId < DEFAULT_PAGE_CAPACITY*2; pageId++ {
			copy(data, fmt.Sprintf("page %d", pageId))
			assert.NoError(t, diskMgr.WritePage(pageId, data))
		}

		buf := make([]byte, PAGE_SIZE)
		assert.NoError(t, diskMgr.ReadPage(DEFAULT_PAGE_CAPACITY*2-1, buf))
		assert.Equal(t, fmt.Sprintf("page %d", DEFAULT_PAGE_CAPACITY*2-1), string(bytes.Trim(buf, "\x00")))
	})
}

func createDbFile(t *testing.T) *os.File {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}
	t.Cleanup(func() {
		_ = file.Close()
	})

	if err := os.Truncate(file.Name(), PAGE_SIZE); err != nil {
		panic(fmt.Sprintf("failed sizing db file\n%v", err))
	}
	return file
}
