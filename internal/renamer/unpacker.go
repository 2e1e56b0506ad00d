package renamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nwaples/rardecode/v2"
)

// Unpacker extracts the members of an archive into a folder
type Unpacker interface {
	// Unpack writes every member missing from dest, flattened, and returns the written paths
	Unpack(ctx context.Context, archive, dest string) ([]string, error)
}

// RarUnpacker reads single and multi-volume RAR archives
type RarUnpacker struct{}

// NewRarUnpacker creates a RAR unpacker
func NewRarUnpacker() *RarUnpacker {
	return &RarUnpacker{}
}

// Unpack extracts archive, following its volumes, into dest
func (u *RarUnpacker) Unpack(ctx context.Context, archive, dest string) ([]string, error) {
	r, err := rardecode.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer r.Close()

	var extracted []string
	for {
		if err := ctx.Err(); err != nil {
			return extracted, err
		}

		header, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return extracted, fmt.Errorf("failed to read archive %s: %w", archive, err)
		}
		if header.IsDir {
			continue
		}

		target := filepath.Join(dest, filepath.Base(filepath.FromSlash(header.Name)))
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := writeMember(target, r); err != nil {
			return extracted, err
		}
		extracted = append(extracted, target)
	}
	return extracted, nil
}

func writeMember(target string, r io.Reader) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(target)
		return fmt.Errorf("failed to extract %s: %w", target, err)
	}
	return out.Close()
}
