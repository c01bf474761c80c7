package util

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteJSON marshals v and writes it to savePath, creating the parent directories
func WriteJSON(savePath string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", savePath, err)
	}
	return writeAtomic(savePath, data)
}

// writeAtomic writes data next to savePath and renames it into place, so
// that concurrent readers see either the old or the new content
func writeAtomic(savePath string, data []byte) error {
	dir := filepath.Dir(savePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(savePath)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, savePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// ReadJSON unmarshals the content of savePath into v.
// The returned error wraps fs.ErrNotExist when the file is missing.
func ReadJSON(savePath string, v interface{}) error {
	data, err := os.ReadFile(savePath)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// AppendJSONLines appends one JSON document per value to savePath.
// All the values go out in a single write.
func AppendJSONLines[T any](savePath string, values ...T) error {
	buf := make([]byte, 0)
	for _, v := range values {
		line, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", savePath, err)
		}
		buf = append(append(buf, line...), '\n')
	}
	if err := os.MkdirAll(filepath.Dir(savePath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(savePath, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return err
	}

	defer f.Close()

	_, err = f.Write(buf)
	return err
}

// ReadJSONLines reads back the values written by AppendJSONLines.
// A missing file reads as no values. A trailing line without its newline is
// still being written and is skipped.
func ReadJSONLines[T any](savePath string) ([]T, error) {
	out := make([]T, 0)
	f, err := os.Open(savePath)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return out, nil
		} else if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", savePath, err)
		}
		out = append(out, v)
	}
}
