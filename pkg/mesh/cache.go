package mesh

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteCache writes records as an indented JSON array.
func WriteCache(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// ReadCache reads a JSON array written by WriteCache.
func ReadCache(r io.Reader) ([]Record, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode record cache: %w", err)
	}
	return records, nil
}

// LoadCacheFile reads a cache file from disk.
func LoadCacheFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCache(f)
}

// SaveCacheFile writes the cache to path, replacing any previous file.
func SaveCacheFile(path string, records []Record) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := WriteCache(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
