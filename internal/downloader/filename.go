package downloader

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

const (
	DefaultExtension = ".glb"

	CollisionOverwrite = "overwrite"
	CollisionSuffix    = "suffix"

	fallbackName = "asset"
)

var illegalChars = strings.NewReplacer(
	"<", "", ">", "", ":", "", `"`, "",
	"/", "", `\`, "", "|", "", "?", "", "*", "",
)

// Sanitize strips characters that are not allowed in file names. The result
// is never empty.
func Sanitize(s string) string {
	s = illegalChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)

	s = strings.TrimSpace(s)
	if s == "" || s == "." || s == ".." {
		return fallbackName
	}
	return s
}

// FileName builds "<name> - <color><ext>", taking the extension from the
// asset URL's path.
func FileName(name, color, assetURL string) string {
	return Sanitize(name+" - "+color) + extension(assetURL)
}

func extension(assetURL string) string {
	u, err := url.Parse(assetURL)
	if err != nil {
		return DefaultExtension
	}

	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 6 || strings.ContainsAny(ext, `<>:"\|?* `) {
		return DefaultExtension
	}
	return ext
}

// Namer places assets in a directory and applies the collision policy.
type Namer struct {
	dir    string
	policy string

	mu       sync.Mutex
	reserved map[string]struct{}
}

func NewNamer(dir, policy string) (*Namer, error) {
	switch policy {
	case "":
		policy = CollisionOverwrite
	case CollisionOverwrite, CollisionSuffix:
	default:
		return nil, fmt.Errorf("unknown collision policy %q", policy)
	}

	return &Namer{
		dir:      dir,
		policy:   policy,
		reserved: make(map[string]struct{}),
	}, nil
}

// Path returns the destination for a variant's asset. Under the suffix
// policy a name that is taken on disk, or handed out earlier in this run,
// gets the first 8 hex digits of the SHA-1 of variantURL appended.
func (n *Namer) Path(variantURL, name, color, assetURL string) (string, error) {
	dest := filepath.Join(n.dir, FileName(name, color, assetURL))
	if n.policy == CollisionOverwrite {
		return dest, nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	taken, err := n.taken(dest)
	if err != nil {
		return "", err
	}
	if taken {
		ext := filepath.Ext(dest)
		dest = strings.TrimSuffix(dest, ext) + " " + shortHash(variantURL) + ext
	}

	n.reserved[dest] = struct{}{}
	return dest, nil
}

func (n *Namer) taken(dest string) (bool, error) {
	if _, ok := n.reserved[dest]; ok {
		return true, nil
	}

	_, err := os.Stat(dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check %s: %w", dest, err)
	}
}

func shortHash(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
