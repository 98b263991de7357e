package resources

import (
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MappedFile is a read-only memory mapping of a file on disk.
type MappedFile struct {
	file *os.File
	data mmap.MMap
}

// MapFile maps path read-only. Empty files are not mapped; their Bytes()
// is empty.
func MapFile(path string) (*MappedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.Size() == 0 {
		return &MappedFile{file: file}, nil
	}
	fileMmap, mmapErr := mmap.Map(file, mmap.RDONLY, 0)
	if mmapErr != nil {
		file.Close()
		return nil, fmt.Errorf("mapping %s: %w", path, mmapErr)
	}
	return &MappedFile{file: file, data: fileMmap}, nil
}

func (mapped *MappedFile) Bytes() []byte {
	return mapped.data
}

// Close unmaps the file and closes its handle.
func (mapped *MappedFile) Close() error {
	var unmapErr error
	if mapped.data != nil {
		unmapErr = mapped.data.Unmap()
		mapped.data = nil
	}
	closeErr := mapped.file.Close()
	if unmapErr != nil {
		return unmapErr
	}
	return closeErr
}
