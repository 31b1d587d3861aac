package index

import (
	"fmt"
	"math/rand"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratumdb/stratum/buffer"
	"github.com/stratumdb/stratum/storage/disk"
)

func newTestBpm(t *testing.T, poolSize int) *buffer.BufferpoolManager {
	t.Helper()
	dbFile := path.Join(t.TempDir(), "test.db")

	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file\n%v", err))
	}
	t.Cleanup(func() {
		_ = file.Close()
	})

	if err := os.Truncate(file.Name(), disk.PAGE_SIZE); err != nil {
		panic(fmt.Sprintf("failed sizing db file\n%v", err))
	}

	diskScheduler := disk.NewScheduler(disk.NewManager(file))
	return buffer.NewBufferpoolManager(poolSize, buffer.NewLruReplacer(), diskScheduler, nil, nil)
}

func newTestTree(t *testing.T, poolSize, leafMaxSize, internalMaxSize int) (*BplusTree, *buffer.BufferpoolManager) {
	t.Helper()
	bufferMgr := newTestBpm(t, poolSize)

	tree, err := NewBplusTree("test_index", bufferMgr, nil, leafMaxSize, internalMaxSize, nil)
	assert.NoError(t, err)
	return tree, bufferMgr
}

// checkParents walks the tree asserting that every child page points back at
// the internal node holding it.
func checkParents(t *testing.T, tree *BplusTree, bufferMgr *buffer.BufferpoolManager, pageId int64) {
	t.Helper()

	guard, err := bufferMgr.FetchPageGuard(pageId)
	assert.NoError(t, err)
	defer guard.Drop()

	node := nodePage{guard.Data()}
	if node.isLeafPage() {
		return
	}

	internal := asInternalPage(guard.Data())
	for i := 0; i < internal.getSize(); i++ {
		childId := internal.valueAt(i)

		childGuard, err := bufferMgr.FetchPageGuard(childId)
		assert.NoError(t, err)
		child := nodePage{childGuard.Data()}
		assert.Equalf(t, pageId, child.parent(), "page %d has a stale parent pointer\n%s", childId, tree.DumpString())
		childGuard.Drop()

		checkParents(t, tree, bufferMgr, childId)
	}
}

func insertAll(t *testing.T, tree *BplusTree, keys []int64) {
	t.Helper()
	for _, key := range keys {
		inserted, err := tree.Insert(key, key*100)
		assert.NoError(t, err)
		assert.Truef(t, inserted, "key %d rejected as duplicate\n%s", key, tree.DumpString())
	}
}

func scanAll(t *testing.T, tree *BplusTree) []int64 {
	t.Helper()
	indexIter, err := tree.Iterator()
	assert.NoError(t, err)
	defer indexIter.Close()

	keys := []int64{}
	for !indexIter.IsEnd() {
		key, value, err := indexIter.Next()
		assert.NoError(t, err)
		assert.Equal(t, key*100, value)
		keys = append(keys, key)
	}
	return keys
}

func TestBplusTree(t *testing.T) {
	t.Run("a fresh index is empty", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)

		assert.True(t, tree.IsEmpty())
		_, found, err := tree.GetValue(1)
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("inserted values are found, absent keys are not", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{5, 1, 3})

		for _, key := range []int64{1, 3, 5} {
			value, found, err := tree.GetValue(key)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, key*100, value)
		}

		_, found, err := tree.GetValue(4)
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("duplicate keys are rejected", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{1})

		inserted, err := tree.Insert(1, 999)
		assert.NoError(t, err)
		assert.False(t, inserted)

		// the original value survives
		value, found, err := tree.GetValue(1)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(100), value)
	})

	t.Run("a leaf split grows an internal root", func(t *testing.T) {
		tree, bufferMgr := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{1, 2, 3, 4, 5})

		rootGuard, err := bufferMgr.FetchPageGuard(tree.rootPageId)
		assert.NoError(t, err)
		root := nodePage{rootGuard.Data()}
		assert.False(t, root.isLeafPage())
		assert.Equal(t, 2, root.getSize())
		rootGuard.Drop()

		checkParents(t, tree, bufferMgr, tree.rootPageId)
		assert.Equal(t, []int64{1, 2, 3, 4, 5}, scanAll(t, tree))
	})

	t.Run("removals repair the tree and keep range reads intact", func(t *testing.T) {
		tree, bufferMgr := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{1, 2, 3, 4, 5})

		assert.NoError(t, tree.Remove(1))
		assert.NoError(t, tree.Remove(5))

		values, err := tree.GetKeyRange(2, 100)
		assert.NoError(t, err)
		assert.Equal(t, []int64{200, 300, 400}, values)

		checkParents(t, tree, bufferMgr, tree.rootPageId)
	})

	t.Run("shuffled inserts scan back in ascending order", func(t *testing.T) {
		tree, bufferMgr := newTestTree(t, 16, 4, 4)

		keys := rand.Perm(200)
		for _, key := range keys {
			inserted, err := tree.Insert(int64(key), int64(key)*100)
			assert.NoError(t, err)
			assert.True(t, inserted)
		}

		expected := []int64{}
		for key := int64(0); key < 200; key++ {
			expected = append(expected, key)
		}
		assert.Equal(t, expected, scanAll(t, tree))
		checkParents(t, tree, bufferMgr, tree.rootPageId)
	})

	t.Run("range reads respect both bounds", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{10, 20, 30, 40, 50, 60, 70})

		values, err := tree.GetKeyRange(25, 55)
		assert.NoError(t, err)
		assert.Equal(t, []int64{3000, 4000, 5000}, values)

		// bounds past either end of the key space
		values, err = tree.GetKeyRange(0, 5)
		assert.NoError(t, err)
		assert.Empty(t, values)

		values, err = tree.GetKeyRange(80, 100)
		assert.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("an iterator from a lower bound starts mid tree", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{10, 20, 30, 40, 50})

		indexIter, err := tree.IteratorFrom(25)
		assert.NoError(t, err)
		defer indexIter.Close()

		key, _, err := indexIter.Next()
		assert.NoError(t, err)
		assert.Equal(t, int64(30), key)
	})

	t.Run("removing every key empties the tree", func(t *testing.T) {
		tree, _ := newTestTree(t, 16, 4, 4)

		keys := []int64{}
		for key := int64(0); key < 30; key++ {
			keys = append(keys, key+1)
		}
		insertAll(t, tree, keys)

		for _, key := range keys {
			assert.NoErrorf(t, tree.Remove(key), "removing key %d\n%s", key, tree.DumpString())
		}

		assert.True(t, tree.IsEmpty())
		assert.Equal(t, []int64{}, scanAll(t, tree))

		// the emptied tree accepts inserts again
		insertAll(t, tree, []int64{7})
		value, found, err := tree.GetValue(7)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(700), value)
	})

	t.Run("survivors stay reachable through heavy deletion", func(t *testing.T) {
		tree, bufferMgr := newTestTree(t, 16, 4, 4)

		keys := []int64{}
		for key := int64(0); key < 50; key++ {
			keys = append(keys, key+1)
		}
		insertAll(t, tree, keys)

		for key := int64(2); key <= 50; key += 2 {
			assert.NoError(t, tree.Remove(key))
		}

		expected := []int64{}
		for key := int64(1); key <= 50; key += 2 {
			expected = append(expected, key)

			value, found, err := tree.GetValue(key)
			assert.NoError(t, err)
			assert.Truef(t, found, "key %d lost\n%s", key, tree.DumpString())
			assert.Equal(t, key*100, value)
		}
		assert.Equal(t, expected, scanAll(t, tree))
		checkParents(t, tree, bufferMgr, tree.rootPageId)
	})

	t.Run("removing an absent key is a no-op", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)
		insertAll(t, tree, []int64{1, 2, 3})

		assert.NoError(t, tree.Remove(99))
		assert.Equal(t, []int64{1, 2, 3}, scanAll(t, tree))
	})

	t.Run("the root survives reopening the index by name", func(t *testing.T) {
		bufferMgr := newTestBpm(t, 10)

		tree, err := NewBplusTree("orders", bufferMgr, nil, 4, 4, nil)
		assert.NoError(t, err)
		insertAll(t, tree, []int64{1, 2, 3, 4, 5})

		reopened, err := NewBplusTree("orders", bufferMgr, nil, 4, 4, nil)
		assert.NoError(t, err)
		assert.Equal(t, tree.rootPageId, reopened.rootPageId)

		value, found, err := reopened.GetValue(3)
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, int64(300), value)
	})

	t.Run("indexes with different names keep separate roots", func(t *testing.T) {
		bufferMgr := newTestBpm(t, 10)

		orders, err := NewBplusTree("orders", bufferMgr, nil, 4, 4, nil)
		assert.NoError(t, err)
		users, err := NewBplusTree("users", bufferMgr, nil, 4, 4, nil)
		assert.NoError(t, err)

		insertAll(t, orders, []int64{1})
		insertAll(t, users, []int64{2})

		assert.NotEqual(t, orders.rootPageId, users.rootPageId)

		_, found, err := orders.GetValue(2)
		assert.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("batch insert loads many pairs", func(t *testing.T) {
		tree, _ := newTestTree(t, 10, 4, 4)

		items := map[int64]int64{}
		for key := int64(0); key < 20; key++ {
			items[key] = key * 100
		}
		assert.NoError(t, tree.BatchInsert(items))

		for key := int64(0); key < 20; key++ {
			value, found, err := tree.GetValue(key)
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, key*100, value)
		}
	})

	t.Run("tree operations leave no pins behind", func(t *testing.T) {
		// the pool covers the deepest split and merge cascades but not
		// hundreds of operations each leaking a pin
		tree, _ := newTestTree(t, 32, 3, 3)

		keys := rand.Perm(300)
		for _, key := range keys {
			_, err := tree.Insert(int64(key), int64(key))
			assert.NoError(t, err)
		}
		for _, key := range keys {
			assert.NoError(t, tree.Remove(int64(key)))
		}
		assert.True(t, tree.IsEmpty())
	})
}
