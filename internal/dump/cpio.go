// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dump

import (
	"fmt"
	"io"

	"github.com/aibor/kvmsandbox/internal/vma"
	"github.com/cavaliergopher/cpio"
)

// CPIOWriter writes memory areas into a cpio archive.
type CPIOWriter struct {
	cpioWriter *cpio.Writer
}

// NewCPIOWriter creates a new archive writer.
func NewCPIOWriter(w io.Writer) *CPIOWriter {
	return &CPIOWriter{cpio.NewWriter(w)}
}

// Close writes the archive trailer. Flush is called by the underlying
// closer.
func (w *CPIOWriter) Close() error {
	err := w.cpioWriter.Close()
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}

	return nil
}

// Flush writes the data to the underlying [io.Writer].
func (w *CPIOWriter) Flush() error {
	err := w.cpioWriter.Flush()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	return nil
}

// WriteArea adds a regular file for the area. Its body are the area's
// length bytes read from content.
func (w *CPIOWriter) WriteArea(area *vma.Area, content io.Reader) error {
	header := &cpio.Header{
		Name:  EntryName(area),
		Mode:  cpio.TypeReg | Mode(area.Prot()),
		Size:  int64(area.Len()),
		Links: 1,
	}

	if err := w.cpioWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", header.Name, err)
	}

	if _, err := io.CopyN(w.cpioWriter, content, header.Size); err != nil {
		return fmt.Errorf("write body for %s: %w", header.Name, err)
	}

	return nil
}

// EntryName returns the archive file name of the area.
func EntryName(area *vma.Area) string {
	return fmt.Sprintf("%016x-%016x", area.Start(), area.End())
}

// Mode returns the permission bits for prot, granted to everyone.
func Mode(prot vma.Prot) cpio.FileMode {
	var mode cpio.FileMode

	if prot&vma.ProtRead != 0 {
		mode |= 0o444
	}

	if prot&vma.ProtWrite != 0 {
		mode |= 0o222
	}

	if prot&vma.ProtExec != 0 {
		mode |= 0o111
	}

	return mode
}
