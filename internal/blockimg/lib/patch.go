package lib

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/flynn-archive/go-shlex"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
)

// ErrNoPatcher is returned when no applier handles a patch type.
var ErrNoPatcher = errors.New("no patcher for patch type")

// BsdiffPatcher applies BSDIFF40 patches in process.
type BsdiffPatcher struct{}

// ApplyPatch applies patch to src. Only bsdiff patches are accepted.
func (BsdiffPatcher) ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error) {
	if t != transfer.TypeBsdiff {
		return nil, fmt.Errorf("%w: %s", ErrNoPatcher, t)
	}
	out, err := bspatch.Bytes(src, patch)
	if err != nil {
		return nil, fmt.Errorf("bspatch failed: %w", err)
	}
	return out, nil
}

// CommandPatcher runs an external tool as "<command> <src> <tgt> <patch>",
// the argument order of applypatch-style binaries.
type CommandPatcher struct {
	Type    transfer.Type
	Command string
	TempDir string
}

// ApplyPatch stages src and patch in temp files, runs the tool, and reads back
// the target it produced.
func (p CommandPatcher) ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error) {
	if t != p.Type {
		return nil, fmt.Errorf("%w: %s", ErrNoPatcher, t)
	}
	argv, err := shlex.Split(p.Command)
	if err != nil {
		return nil, fmt.Errorf("invalid %s command %q: %w", t, p.Command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: %s command is empty", ErrNoPatcher, t)
	}

	dir, err := os.MkdirTemp(p.TempDir, "patch-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	srcPath := filepath.Join(dir, "source")
	tgtPath := filepath.Join(dir, "target")
	patchPath := filepath.Join(dir, "patch")
	if err := os.WriteFile(srcPath, src, 0600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(patchPath, patch, 0600); err != nil {
		return nil, err
	}

	var stderr bytes.Buffer
	cmd := exec.Command(argv[0], append(argv[1:], srcPath, tgtPath, patchPath)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s command failed: %w: %s", t, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return os.ReadFile(tgtPath)
}

// Patcher is the interface shared by the appliers in this file.
type Patcher interface {
	ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error)
}

// MultiPatcher dispatches by patch type.
type MultiPatcher map[transfer.Type]Patcher

// ApplyPatch hands the patch to the applier registered for t.
func (m MultiPatcher) ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error) {
	p, ok := m[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPatcher, t)
	}
	return p.ApplyPatch(t, src, patch)
}

// NewPatcher builds the default dispatcher: in-process bsdiff unless a bsdiff
// command is configured, and imgdiff only through a configured command.
func NewPatcher(bsdiffCommand, imgdiffCommand, tempDir string) MultiPatcher {
	m := MultiPatcher{transfer.TypeBsdiff: BsdiffPatcher{}}
	if bsdiffCommand != "" {
		m[transfer.TypeBsdiff] = CommandPatcher{Type: transfer.TypeBsdiff, Command: bsdiffCommand, TempDir: tempDir}
	}
	if imgdiffCommand != "" {
		m[transfer.TypeImgdiff] = CommandPatcher{Type: transfer.TypeImgdiff, Command: imgdiffCommand, TempDir: tempDir}
	}
	return m
}
