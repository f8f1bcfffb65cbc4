package dataset

import (
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind distinguishes the two IDX files of a split.
type Kind string

const (
	KindImages Kind = "images"
	KindLabels Kind = "labels"
)

// Split names accepted by Load.
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

var idxFileRegexp = regexp.MustCompile(`^(train|t10k)-(images|labels)[-.]idx[13]-ubyte(\.gz)?$`)

// Files maps a split and kind to the path of its IDX file.
type Files map[string]map[Kind]string

// Path returns the file for split/kind, or "" if it was not found.
func (f Files) Path(split string, kind Kind) string {
	return f[split][kind]
}

// DiscoverFiles returns the MNIST IDX files found beneath dir.
// Uncompressed files win over their .gz counterparts when both are present.
func DiscoverFiles(dir string) (Files, error) {
	dir = ReplaceTildeInDir(dir)
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if idxFileRegexp.MatchString(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "discover IDX files under %q", dir)
	}
	// ".gz" sorts after the bare name, so the bare file is seen first.
	sort.Strings(paths)

	files := Files{}
	for _, path := range paths {
		m := idxFileRegexp.FindStringSubmatch(filepath.Base(path))
		split := SplitTrain
		if m[1] == "t10k" {
			split = SplitTest
		}
		kind := Kind(m[2])
		if files[split] == nil {
			files[split] = map[Kind]string{}
		}
		if _, found := files[split][kind]; !found {
			files[split][kind] = path
		}
	}

	var missing []string
	for _, split := range []string{SplitTrain, SplitTest} {
		for _, kind := range []Kind{KindImages, KindLabels} {
			if files.Path(split, kind) == "" {
				missing = append(missing, split+"/"+string(kind))
			}
		}
	}
	if len(missing) > 0 {
		return files, errors.Errorf("missing IDX files under %q: %s", dir, strings.Join(missing, ", "))
	}
	return files, nil
}

// ReplaceTildeInDir replaces a leading "~" by the user's home directory.
func ReplaceTildeInDir(dir string) string {
	if len(dir) == 0 || dir[0] != '~' {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		usr, uErr := user.Current()
		if uErr != nil {
			return dir
		}
		home = usr.HomeDir
	}
	return filepath.Join(home, dir[1:])
}

// FileExists returns true if file or directory exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
