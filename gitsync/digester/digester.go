package digester

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	"github.com/byte4ever/codepublish/gitsync/git"
)

// FilesDigest computes the SHA256 hex digest of a generated
// file set. Files are hashed in path order; a deleted file
// contributes its path and a tombstone marker.
func FilesDigest(files []git.GeneratedFile) string {
	sorted := slices.Clone(files)
	slices.SortFunc(sorted, func(a, b git.GeneratedFile) int {
		return strings.Compare(a.Path, b.Path)
	})

	ha := sha256.New()

	for _, f := range sorted {
		content := sha256.Sum256([]byte(f.Content))

		kind := "F"
		if f.Deleted {
			kind = "D"
			content = [sha256.Size]byte{}
		}

		// One line per file: kind, path length, path, content hash.
		_, _ = fmt.Fprintf(
			ha, "%s %d %s %x\n", kind, len(f.Path), f.Path, content,
		)
	}

	return hex.EncodeToString(ha.Sum(nil))
}
