package manifest

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/yndnr/worldsnap/internal/core/domain"
)

var magicBytes = []byte("WSNPMANI")

const (
	fileExtension = ".manifest"
	checksumSize  = 32
	headerVersion = 1
)

var (
	ErrInvalidMagic     = errors.New("manifest: invalid magic bytes")
	ErrChecksumMismatch = errors.New("manifest: checksum mismatch")
	ErrVersion          = errors.New("manifest: unsupported version")
)

type manifestHeader struct {
	Version    int                `json:"version"`
	Generation *domain.Generation `json:"generation"`
	RefCount   int                `json:"ref_count"`
}

type manifestRef struct {
	Path       string              `json:"path"`
	Generation domain.GenerationID `json:"generation"`
	Target     string              `json:"target"`
}

// writeFile encodes a generation and its reference table to path atomically.
func writeFile(path string, gen *domain.Generation, refs map[string]domain.Reference) (err error) {
	tempPath := path + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("manifest: create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tempPath)
		}
	}()

	hash := sha256.New()
	bw := bufio.NewWriter(file)
	writer := io.MultiWriter(bw, hash)

	if _, err = writer.Write(magicBytes); err != nil {
		return fmt.Errorf("manifest: write magic: %w", err)
	}

	hdrJSON, err := json.Marshal(manifestHeader{
		Version:    headerVersion,
		Generation: gen,
		RefCount:   len(refs),
	})
	if err != nil {
		return fmt.Errorf("manifest: marshal header: %w", err)
	}
	if err = writeFrame(writer, hdrJSON); err != nil {
		return fmt.Errorf("manifest: write header: %w", err)
	}

	entries := make([]manifestRef, 0, len(refs))
	for p, r := range refs {
		entries = append(entries, manifestRef{Path: p, Generation: r.Generation, Target: r.Path})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("manifest: marshal refs: %w", err)
	}
	if err = writeFrame(writer, data); err != nil {
		return fmt.Errorf("manifest: write refs: %w", err)
	}

	// Checksum trailer is not part of the hash.
	if _, err = bw.Write(hash.Sum(nil)); err != nil {
		return fmt.Errorf("manifest: write checksum: %w", err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("manifest: flush: %w", err)
	}
	if err = file.Sync(); err != nil {
		return fmt.Errorf("manifest: sync: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("manifest: close: %w", err)
	}
	if err = os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("manifest: rename: %w", err)
	}
	return syncDir(filepath.Dir(path))
}

func writeFrame(w io.Writer, payload []byte) error {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(payload)))
	if _, err := w.Write(n[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFile decodes and verifies a manifest file.
func readFile(path string) (*domain.Generation, map[string]domain.Reference, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < len(magicBytes)+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	body := raw[:len(raw)-checksumSize]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], raw[len(body):]) {
		return nil, nil, ErrChecksumMismatch
	}
	if !bytes.Equal(body[:len(magicBytes)], magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	r := bytes.NewReader(body[len(magicBytes):])
	hdrJSON, err := readFrame(r)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: read header: %w", err)
	}
	var hdr manifestHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("manifest: unmarshal header: %w", err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrVersion, hdr.Version)
	}
	if hdr.Generation == nil {
		return nil, nil, fmt.Errorf("manifest: header without generation")
	}

	data, err := readFrame(r)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: read refs: %w", err)
	}
	var entries []manifestRef
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, nil, fmt.Errorf("manifest: unmarshal refs: %w", err)
	}
	if len(entries) != hdr.RefCount {
		return nil, nil, fmt.Errorf("manifest: ref count %d, header says %d", len(entries), hdr.RefCount)
	}

	refs := make(map[string]domain.Reference, len(entries))
	for _, e := range entries {
		refs[e.Path] = domain.Reference{Generation: e.Generation, Path: e.Target}
	}
	return hdr.Generation, refs, nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var n [4]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, err
	}
	payload := make([]byte, binary.BigEndian.Uint32(n[:]))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("manifest: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("manifest: sync dir: %w", err)
	}
	return nil
}
