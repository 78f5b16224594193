package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// HomeEnv overrides the default root directory.
const HomeEnv = "KESTREL_HOME"

// Paths lays out the files the engine keeps between runs under one root:
//
//	<root>/db      option and learning database
//	<root>/nnue    network files
//	<root>/books   Polyglot opening books
//
// The zero Paths has no root and resolves every name as given.
type Paths struct {
	Root string
}

// DefaultPaths roots the layout at $KESTREL_HOME, or at kestrel/ under the
// user's configuration directory.
func DefaultPaths() (Paths, error) {
	if root := os.Getenv(HomeEnv); root != "" {
		return Paths{Root: root}, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, fmt.Errorf("storage: locate data directory: %w", err)
	}
	return Paths{Root: filepath.Join(dir, "kestrel")}, nil
}

func (p Paths) DB() string       { return filepath.Join(p.Root, "db") }
func (p Paths) Networks() string { return filepath.Join(p.Root, "nnue") }
func (p Paths) Books() string    { return filepath.Join(p.Root, "books") }

// Ensure creates the directories of the layout.
func (p Paths) Ensure() error {
	if p.Root == "" {
		return nil
	}
	for _, dir := range []string{p.DB(), p.Networks(), p.Books()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}
	return nil
}

// ResolveNetwork maps an EvalFile value to a path. Names that do not exist
// as given are looked up in the network directory.
func (p Paths) ResolveNetwork(name string) string {
	return p.resolve(p.Networks(), name)
}

// ResolveBook maps a BookFile value to a path, like ResolveNetwork.
func (p Paths) ResolveBook(name string) string {
	return p.resolve(p.Books(), name)
}

func (p Paths) resolve(dir, name string) string {
	if name == "" || p.Root == "" || filepath.IsAbs(name) || exists(name) {
		return name
	}
	if candidate := filepath.Join(dir, name); exists(candidate) {
		return candidate
	}
	return name
}

// FindNetwork returns the first of names found in the network directory,
// ./nnue or the working directory.
func (p Paths) FindNetwork(names ...string) (string, bool) {
	dirs := []string{"nnue", "."}
	if p.Root != "" {
		dirs = append([]string{p.Networks()}, dirs...)
	}
	for _, dir := range dirs {
		for _, name := range names {
			if path := filepath.Join(dir, name); exists(path) {
				return path, true
			}
		}
	}
	return "", false
}

func exists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
