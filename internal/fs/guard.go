package fs

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// DefaultRoot is the confinement root segment used when none is configured.
const DefaultRoot = "public"

// Admitted is a client path that passed confinement.
type Admitted struct {
	// Rel is the cleaned slash path, starting with the root segment.
	Rel string
	// Abs is the resolved OS path inside the confinement root. Reads and
	// saves follow it.
	Abs string
	// Link is the entry itself: its resolved parent directory joined with
	// the unresolved base name. When the entry is a symbolic link, Link names
	// the link and Abs its target. Delete, rename and move act on Link.
	Link string
}

// IsRoot reports whether the admitted path is the confinement root itself.
func (a Admitted) IsRoot() bool {
	return !strings.Contains(a.Rel, "/")
}

// Guard decides whether a client supplied path may be touched. The first
// cleaned segment must equal the root segment, and the path resolved under
// the working directory (symlinks included) must stay inside the root.
type Guard struct {
	workDir string
	root    string
	rootAbs string
}

// NewGuard creates a Guard for the root segment inside workDir.
func NewGuard(workDir, root string) (*Guard, error) {
	if root == "" {
		root = DefaultRoot
	}
	if strings.ContainsAny(root, `/\`) || root == "." || root == ".." {
		return nil, fmt.Errorf("root %q must be a single path segment", root)
	}
	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir %s: %w", workDir, err)
	}
	rootAbs, err := securejoin.SecureJoin(absWork, root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Guard{workDir: absWork, root: root, rootAbs: rootAbs}, nil
}

// Root returns the confinement root segment.
func (g *Guard) Root() string {
	return g.root
}

// RootAbs returns the absolute path of the confinement root.
func (g *Guard) RootAbs() string {
	return g.rootAbs
}

// Clean performs the textual half of admission: it normalises candidate and
// checks that it is relative and starts with the root segment. Sources that
// never touch the local disk use it directly.
func (g *Guard) Clean(candidate string) (string, error) {
	if candidate == "" || strings.HasPrefix(candidate, "/") || filepath.IsAbs(candidate) {
		return "", g.reject(candidate)
	}
	cleaned := path.Clean(candidate)
	first, _, _ := strings.Cut(cleaned, "/")
	if first != g.root {
		return "", g.reject(candidate)
	}
	return cleaned, nil
}

// Admit cleans candidate and resolves it inside the confinement root.
func (g *Guard) Admit(candidate string) (Admitted, error) {
	rel, err := g.Clean(candidate)
	if err != nil {
		return Admitted{}, err
	}
	abs, err := securejoin.SecureJoin(g.workDir, filepath.FromSlash(rel))
	if err != nil {
		return Admitted{}, &Error{Kind: KindOutOfScope, Op: "admit", Path: candidate, Msg: g.message(), Err: err}
	}
	if !g.contains(abs) {
		return Admitted{}, g.reject(candidate)
	}

	link := abs
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		parent, err := securejoin.SecureJoin(g.workDir, filepath.FromSlash(rel[:i]))
		if err != nil {
			return Admitted{}, &Error{Kind: KindOutOfScope, Op: "admit", Path: candidate, Msg: g.message(), Err: err}
		}
		if !g.contains(parent) {
			return Admitted{}, g.reject(candidate)
		}
		link = filepath.Join(parent, rel[i+1:])
	}
	return Admitted{Rel: rel, Abs: abs, Link: link}, nil
}

func (g *Guard) contains(abs string) bool {
	r, err := filepath.Rel(g.rootAbs, abs)
	if err != nil {
		return false
	}
	return r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator))
}

func (g *Guard) reject(candidate string) error {
	return newError(KindOutOfScope, "admit", candidate, g.message())
}

func (g *Guard) message() string {
	return "Path must be within the " + g.root + " directory"
}
