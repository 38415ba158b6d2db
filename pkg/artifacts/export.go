package artifacts

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrEmptyGroup is returned when exporting a group without code
var ErrEmptyGroup = errors.New("code group has no code blocks")

// ItemName names a single block download. Indexes are 0-based.
func ItemName(requestIndex, codeIndex int, code CodeSegment) string {
	return fmt.Sprintf("codigo_peticion_%d_%d.%s", requestIndex+1, codeIndex+1, Extension(code.Language))
}

// ExportName names the download for a whole group: a plain file for a
// single block, a zip archive otherwise.
func ExportName(requestIndex int, group CodeRequestGroup) string {
	if len(group.Codes) == 1 {
		return fmt.Sprintf("codigo_peticion_%d.%s", requestIndex+1, Extension(group.Codes[0].Language))
	}
	return fmt.Sprintf("codigos_peticion_%d.zip", requestIndex+1)
}

// Export writes a group to w in the format chosen by ExportName
func Export(w io.Writer, group CodeRequestGroup) error {
	switch len(group.Codes) {
	case 0:
		return ErrEmptyGroup
	case 1:
		if _, err := io.WriteString(w, group.Codes[0].Content); err != nil {
			return fmt.Errorf("failed to write code: %w", err)
		}
		return nil
	default:
		return WriteBundle(w, group)
	}
}

// WriteBundle writes every block of the group into a zip archive
func WriteBundle(w io.Writer, group CodeRequestGroup) error {
	if len(group.Codes) == 0 {
		return ErrEmptyGroup
	}

	zw := zip.NewWriter(w)
	modified := time.Now()
	for i, name := range FileNames(group) {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", name, err)
		}
		if _, err := io.WriteString(f, group.Codes[i].Content); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return nil
}
