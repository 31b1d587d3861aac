package index

import (
	"fmt"
	"strings"
)

// GetKeyRange returns the values for all keys in [start, stop].
func (b *BplusTree) GetKeyRange(start, stop int64) ([]int64, error) {
	indexIter, err := b.IteratorFrom(start)
	if err != nil {
		return nil, err
	}
	defer indexIter.Close()

	res := []int64{}
	for !indexIter.IsEnd() {
		key, val, err := indexIter.Next()
		if err != nil {
			return res, err
		}
		if b.comparator(key, stop) > 0 {
			break
		}
		res = append(res, val)
	}

	return res, nil
}

func (b *BplusTree) BatchInsert(items map[int64]int64) error {
	for k, v := range items {
		if _, err := b.Insert(k, v); err != nil {
			return err
		}
	}

	return nil
}

// DumpString renders the tree's structure for debugging and test failure
// output.
func (b *BplusTree) DumpString() string {
	if b.IsEmpty() {
		return "(empty)"
	}

	var sb strings.Builder
	b.dumpPage(&sb, b.rootPageId, 0)
	return sb.String()
}

func (b *BplusTree) dumpPage(sb *strings.Builder, pageId int64, depth int) {
	guard, err := b.bpm.FetchPageGuard(pageId)
	if err != nil {
		fmt.Fprintf(sb, "%s<error fetching page %d: %v>\n", strings.Repeat("  ", depth), pageId, err)
		return
	}
	defer guard.Drop()

	indent := strings.Repeat("  ", depth)
	node := nodePage{guard.Data()}

	if node.isLeafPage() {
		leaf := asLeafPage(guard.Data())
		fmt.Fprintf(sb, "%sleaf %d (parent %d, next %d):", indent, pageId, node.parent(), leaf.next())
		for i := 0; i < leaf.getSize(); i++ {
			fmt.Fprintf(sb, " %d", leaf.keyAt(i))
		}
		sb.WriteString("\n")
		return
	}

	internal := asInternalPage(guard.Data())
	fmt.Fprintf(sb, "%sinternal %d (parent %d):", indent, pageId, node.parent())
	for i := 1; i < internal.getSize(); i++ {
		fmt.Fprintf(sb, " %d", internal.keyAt(i))
	}
	sb.WriteString("\n")

	for i := 0; i < internal.getSize(); i++ {
		b.dumpPage(sb, internal.valueAt(i), depth+1)
	}
}
