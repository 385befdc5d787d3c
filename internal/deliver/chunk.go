package deliver

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Split writes sequential fixed-size byte ranges of the artifact to
// sibling .partN files and returns their paths in ordinal order. The
// source file is left untouched. Parts are streamed, never buffered
// whole. token namespaces the part paths so concurrent runs splitting
// the same artifact (a shared cache target) never touch each other's
// parts.
func Split(path, token string, chunkSize int64) ([]string, error) {
	if chunkSize <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if token == "" {
		return nil, errors.New("split token is required")
	}
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var parts []string
	for i := 0; ; i++ {
		partPath := fmt.Sprintf("%s.%s.part%d", path, token, i)
		n, err := writePart(src, partPath, chunkSize)
		if err != nil {
			removeAll(parts)
			return nil, err
		}
		if n == 0 {
			// Source exhausted exactly on the previous boundary.
			if rmErr := os.Remove(partPath); rmErr != nil && !os.IsNotExist(rmErr) {
				removeAll(parts)
				return nil, rmErr
			}
			break
		}
		parts = append(parts, partPath)
		if n < chunkSize {
			break
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("artifact is empty")
	}
	return parts, nil
}

func writePart(src io.Reader, path string, chunkSize int64) (int64, error) {
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}
	n, err := io.CopyN(dst, src, chunkSize)
	if closeErr := dst.Close(); closeErr != nil && err == nil {
		return n, closeErr
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	return n, nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		_ = os.Remove(p)
	}
}
