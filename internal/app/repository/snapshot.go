package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sifan077/tinylink/internal/app/model"
	"github.com/spf13/afero"
)

// snapshotFile stores the whole registry as one JSON object keyed by code.
// Keys are written in insertion order and read back in file order, so the
// order survives a restart.
type snapshotFile struct {
	fs   afero.Fs
	path string
}

func (s *snapshotFile) load() ([]string, map[string]*model.Link, error) {
	links := make(map[string]*model.Link)

	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, links, nil
		}
		return nil, nil, &PersistenceError{Op: "read " + s.path, Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, links, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", s.path, err)
	}

	var order []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", s.path, err)
		}
		code, ok := tok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("decode %s: unexpected key %v", s.path, tok)
		}

		var link model.Link
		if err := dec.Decode(&link); err != nil {
			return nil, nil, fmt.Errorf("decode %s: record %q: %w", s.path, code, err)
		}
		link.Code = code

		if _, dup := links[code]; !dup {
			order = append(order, code)
		}
		links[code] = &link
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return order, links, nil
}

// save overwrites the snapshot through a temp file and rename, so readers of
// the path only ever see a complete document.
func (s *snapshotFile) save(order []string, links map[string]*model.Link) error {
	data, err := encodeSnapshot(order, links)
	if err != nil {
		return &PersistenceError{Op: "encode", Err: err}
	}

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return &PersistenceError{Op: "mkdir " + dir, Err: err}
	}

	tmp, err := afero.TempFile(s.fs, dir, ".links-*.tmp")
	if err != nil {
		return &PersistenceError{Op: "create temp file", Err: err}
	}
	tmpName := tmp.Name()

	if err := writeAndSync(tmp, data); err != nil {
		_ = s.fs.Remove(tmpName)
		return &PersistenceError{Op: "write " + tmpName, Err: err}
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return &PersistenceError{Op: "rename " + tmpName, Err: err}
	}
	return nil
}

func writeAndSync(f afero.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeSnapshot(order []string, links map[string]*model.Link) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, code := range order {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(code)
		if err != nil {
			return nil, err
		}
		body, err := json.MarshalIndent(links[code], "  ", "  ")
		if err != nil {
			return nil, err
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(body)
	}
	if len(order) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}
