package renamer

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Action is how a file reaches the library
type Action string

const (
	ActionMove            Action = "move"
	ActionCopy            Action = "copy"
	ActionLink            Action = "link"
	ActionSymlinkReversed Action = "symlink_reversed"
)

// ParseAction returns the action named s, defaulting to move
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionCopy, ActionLink, ActionSymlinkReversed:
		return Action(s)
	default:
		return ActionMove
	}
}

// KeepsSource reports whether the source file is still readable at its old path afterwards
func (a Action) KeepsSource() bool {
	return a != ActionMove
}

// ErrDestinationExists is returned when the destination is already a file
var ErrDestinationExists = errors.New("destination already exists")

// Mover places files at their library destination
type Mover struct {
	filePerm   os.FileMode
	folderPerm os.FileMode
	logger     *logrus.Logger
}

// NewMover creates a mover applying the given permissions to what it creates
func NewMover(filePerm, folderPerm os.FileMode, logger *logrus.Logger) *Mover {
	return &Mover{
		filePerm:   filePerm,
		folderPerm: folderPerm,
		logger:     logger,
	}
}

// MakeDir creates path and its parents with the folder permission
func (m *Mover) MakeDir(path string) error {
	if err := os.MkdirAll(path, m.folderPerm); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}

// Move places src at dst using action. dst must not exist yet.
func (m *Mover) Move(src, dst string, action Action) error {
	if info, err := os.Stat(dst); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	}

	log := m.logger.WithFields(logrus.Fields{
		"from":   src,
		"to":     dst,
		"action": action,
	})

	var err error
	switch action {
	case ActionCopy:
		log.Info("Copying file")
		err = copyFile(src, dst)
	case ActionSymlinkReversed:
		log.Info("Reverse symlinking file")
		if err = m.move(src, dst); err != nil {
			break
		}
		if linkErr := os.Symlink(dst, src); linkErr != nil {
			log.WithError(linkErr).Error("Error while linking back to the original location")
		}
	case ActionLink:
		log.Info("Linking file")
		err = m.link(src, dst)
	default:
		log.Info("Moving file")
		err = m.move(src, dst)
	}
	if err != nil {
		return fmt.Errorf("couldn't move file %s to %s: %w", src, dst, err)
	}

	if err := os.Chmod(dst, m.filePerm); err != nil {
		log.WithError(err).Warn("Failed setting permissions for file")
	}
	return nil
}

// move renames src, copying across filesystems. A failed copy whose
// result matches the source size still counts as moved.
func (m *Mover) move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	copyErr := copyFile(src, dst)
	if copyErr == nil {
		return os.Remove(src)
	}

	srcInfo, srcErr := os.Stat(src)
	dstInfo, dstErr := os.Stat(dst)
	if srcErr == nil && dstErr == nil && srcInfo.Size() == dstInfo.Size() {
		m.logger.WithError(copyErr).WithField("to", dst).Error("Successfully moved file, but something went wrong")
		return os.Remove(src)
	}
	if dstErr == nil {
		_ = os.Remove(dst)
	}
	return copyErr
}

// link hardlinks src to dst; across filesystems it copies and replaces src
// with a symlink to the copy
func (m *Mover) link(src, dst string) error {
	err := os.Link(src, dst)
	if err == nil {
		return nil
	}
	m.logger.WithError(err).WithField("from", src).Debug("Couldn't hardlink file, symlinking instead")

	if err := copyFile(src, dst); err != nil {
		return err
	}

	oldLink := src + ".link"
	if err := os.Symlink(dst, oldLink); err != nil {
		m.logger.WithError(err).WithField("from", src).Error("Couldn't symlink file, copied instead")
		return nil
	}
	if err := os.Remove(src); err != nil {
		_ = os.Remove(oldLink)
		m.logger.WithError(err).WithField("from", src).Error("Couldn't symlink file, copied instead")
		return nil
	}
	return os.Rename(oldLink, src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
