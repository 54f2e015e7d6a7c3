package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Read loads and verifies a single snapshot file, returning the document
// term counts it contains. Files with a bad magic number, an unsupported
// version, a truncated body, or a checksum mismatch are rejected.
func Read(path string) (map[string]map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("invalid snapshot file %s: truncated (%d bytes)", path, len(data))
	}

	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid snapshot file %s: bad magic bytes %x", path, magic)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("invalid snapshot file %s: unsupported version %d", path, version)
	}
	bodySize := int64(binary.LittleEndian.Uint64(data[24:32]))
	if int64(len(data)) != int64(HeaderSize)+bodySize+int64(FooterSize) {
		return nil, fmt.Errorf("invalid snapshot file %s: body size mismatch", path)
	}

	body := data[HeaderSize : int64(HeaderSize)+bodySize]
	footer := data[int64(HeaderSize)+bodySize:]
	wantCRC := binary.LittleEndian.Uint32(footer[0:4])
	if got := crc32.ChecksumIEEE(body); got != wantCRC {
		return nil, fmt.Errorf("invalid snapshot file %s: checksum mismatch (got %x, want %x)", path, got, wantCRC)
	}

	var entries []DocumentEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("parsing snapshot body: %w", err)
	}
	docs := make(map[string]map[string]int, len(entries))
	for _, entry := range entries {
		docs[entry.DocID] = entry.Terms
	}
	return docs, nil
}

// Latest returns the path and sequence number of the newest snapshot for
// the named corpus. It returns ok=false when the corpus has no snapshots.
func Latest(dataDir, corpus string) (path string, sequence uint64, ok bool) {
	corpusDir := filepath.Join(dataDir, corpus)
	names, err := listSnapshots(corpusDir)
	if err != nil || len(names) == 0 {
		return "", 0, false
	}
	name := names[len(names)-1]
	seq, err := parseSequence(name)
	if err != nil {
		return "", 0, false
	}
	return filepath.Join(corpusDir, name), seq, true
}

// LoadLatest reads the newest snapshot for the named corpus. Corrupted
// snapshots are skipped in favour of the next older one, so a bad write
// never blocks recovery.
func LoadLatest(dataDir, corpus string) (map[string]map[string]int, uint64, error) {
	corpusDir := filepath.Join(dataDir, corpus)
	names, err := listSnapshots(corpusDir)
	if err != nil {
		return nil, 0, err
	}
	for i := len(names) - 1; i >= 0; i-- {
		path := filepath.Join(corpusDir, names[i])
		seq, err := parseSequence(names[i])
		if err != nil {
			continue
		}
		docs, err := Read(path)
		if err != nil {
			continue
		}
		return docs, seq, nil
	}
	return nil, 0, fmt.Errorf("no readable snapshot for corpus %q", corpus)
}

// Corpora lists the corpus names that have at least one snapshot under
// the data directory.
func Corpora(dataDir string) []string {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		snaps, err := listSnapshots(filepath.Join(dataDir, entry.Name()))
		if err == nil && len(snaps) > 0 {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// listSnapshots returns snapshot file names in ascending sequence order.
func listSnapshots(corpusDir string) ([]string, error) {
	entries, err := os.ReadDir(corpusDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "snap_") && strings.HasSuffix(name, ".tcs") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func parseSequence(name string) (uint64, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "snap_"), ".tcs")
	return strconv.ParseUint(trimmed, 10, 64)
}
