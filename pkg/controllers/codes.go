package controllers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/killallgit/genesis/pkg/artifacts"
)

// ErrNoSuchRequest is returned for a request number without code
var ErrNoSuchRequest = errors.New("no code for that request")

// ListCodes prints the code produced per request, numbered from 1
func ListCodes(writer io.Writer, groups []artifacts.CodeRequestGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(writer, "No code generated yet")
		return
	}
	for i, group := range groups {
		fmt.Fprintf(writer, "%d. %s\n", i+1, group.UserMessage)
		for _, name := range artifacts.FileNames(group) {
			fmt.Fprintf(writer, "   - %s\n", name)
		}
	}
}

// ExportCodes writes the code of request n (1-based) to path. A path that
// is an existing directory receives the default export name. It returns
// the path written.
func ExportCodes(groups []artifacts.CodeRequestGroup, n int, path string) (string, error) {
	if n < 1 || n > len(groups) {
		return "", fmt.Errorf("request %d: %w", n, ErrNoSuchRequest)
	}
	group := groups[n-1]

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, artifacts.ExportName(n-1, group))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := artifacts.Export(f, group); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
