package index

import (
	"fmt"

	"github.com/stratumdb/stratum/util"
)

// directoryPage is the content of the reserved directory page: a map from
// index name to root page id, so an index can find its root again after a
// restart. It is msgpack-encoded into the page image.
type directoryPage struct {
	Records map[string]int64
}

// loadDirectoryPage decodes the directory from a page image. A zeroed page
// (fresh database) decodes to an empty directory.
func loadDirectoryPage(data []byte) (directoryPage, error) {
	if data[0] == 0 {
		return directoryPage{Records: map[string]int64{}}, nil
	}

	dir, err := util.ToStruct[directoryPage](data)
	if err != nil {
		return directoryPage{}, fmt.Errorf("error decoding directory page: %v", err)
	}
	if dir.Records == nil {
		dir.Records = map[string]int64{}
	}
	return dir, nil
}

func (d directoryPage) getRecord(name string) (int64, bool) {
	rootPageId, ok := d.Records[name]
	return rootPageId, ok
}

func (d directoryPage) insertRecord(name string, rootPageId int64) {
	d.Records[name] = rootPageId
}

func (d directoryPage) updateRecord(name string, rootPageId int64) {
	d.Records[name] = rootPageId
}

// save encodes the directory back into the page image.
func (d directoryPage) save(data []byte) error {
	encoded, err := util.ToByteSlice(d)
	if err != nil {
		return fmt.Errorf("error encoding directory page: %v", err)
	}
	copy(data, encoded)
	return nil
}
