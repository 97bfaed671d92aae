package schedule

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"

	apperrors "frabcal/internal/errors"
)

// Render encodes doc as indented XML with a declaration header.
func Render(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteXML(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteXML encodes doc to w.
func WriteXML(w io.Writer, doc *Document) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteFile renders doc completely before touching path, then replaces path
// atomically via a temp file in the same directory. A failed run never
// leaves a partial schedule behind.
func WriteFile(path string, doc *Document) error {
	data, err := Render(doc)
	if err != nil {
		return &apperrors.IOError{Op: "encode", Path: path, Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".frabcal-schedule-*.tmp")
	if err != nil {
		return &apperrors.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &apperrors.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &apperrors.IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &apperrors.IOError{Op: "write", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &apperrors.IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &apperrors.IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}
