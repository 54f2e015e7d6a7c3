package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"
)

// MagicBytes identifies a valid .tcs corpus snapshot file.
const (
	MagicBytes    uint32 = 0x54435331
	FormatVersion uint32 = 1
	HeaderSize    int    = 48
	FooterSize    int    = 16
)

// Header is the fixed-size block written at the start of every snapshot.
type Header struct {
	Magic     uint32
	Version   uint32
	DocCount  uint32
	TermCount uint32
	CreatedAt int64
	BodySize  int64
}

// DocumentEntry is one document's term counts in the snapshot body.
type DocumentEntry struct {
	DocID string         `json:"d"`
	Terms map[string]int `json:"t"`
}

// Writer serialises corpus term counts into sequenced .tcs snapshot files,
// one directory per corpus.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer rooted at the given data directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates snapshot file snap_<sequence>.tcs for the named
// corpus. It writes to a .tmp file first and renames on success, so a
// crashed writer never leaves a partial snapshot behind.
func (w *Writer) Write(corpus string, sequence uint64, docs map[string]map[string]int) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("cannot write empty snapshot for corpus %q", corpus)
	}

	corpusDir := filepath.Join(w.dataDir, corpus)
	if err := os.MkdirAll(corpusDir, 0755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}
	name := FileName(sequence)
	finalPath := filepath.Join(corpusDir, name)
	tmpPath := finalPath + ".tmp"

	entries := make([]DocumentEntry, 0, len(docs))
	terms := make(map[string]struct{})
	for docID, counts := range docs {
		entries = append(entries, DocumentEntry{DocID: docID, Terms: counts})
		for term := range counts {
			terms[term] = struct{}{}
		}
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling snapshot body: %w", err)
	}

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer f.Close()

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(docs)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(terms)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(body)))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		return "", fmt.Errorf("writing body: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint64(footer[8:16], sequence)
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing snapshot file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot file: %w", err)
	}
	return name, nil
}

// FileName returns the snapshot file name for a sequence number. Sequences
// are zero-padded so lexical directory order matches numeric order.
func FileName(sequence uint64) string {
	return fmt.Sprintf("snap_%016d.tcs", sequence)
}
