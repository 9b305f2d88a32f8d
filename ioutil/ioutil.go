// Package ioutil implements the small filesystem helpers a graph-cleaning
// run needs around its real I/O: path creation, per-thread scratch files,
// and file probing. It is not a general file-format abstraction -- graphfile
// uses github.com/grailbio/base/file directly for that.
package ioutil

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"

	"github.com/pkg/errors"
)

// EnsurePathExists creates dir and all missing parents, mode 0755, same as
// mkdir -p. It is a no-op (not an error) if dir already exists and is a
// directory; it errors if dir exists and is not a directory.
func EnsurePathExists(dir string) error {
	st, err := os.Stat(dir)
	if err == nil {
		if !st.IsDir() {
			return errors.Errorf("ioutil: %s exists and is not a directory", dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return errors.Wrapf(err, "ioutil: stat %s", dir)
	}
	return errors.Wrapf(os.MkdirAll(dir, 0755), "ioutil: mkdir -p %s", dir)
}

// FileIsReadable reports whether path can be opened for reading.
func FileIsReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// FileIsWritable reports whether path can be opened for writing, creating
// it if it doesn't exist (matching test_file_writable's fopen(path, "w")
// semantics -- this does leave an empty file behind on success).
func FileIsWritable(path string) bool {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// FileSize returns path's size in bytes, or -1 if it cannot be stat'd.
func FileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return st.Size()
}

// GenerateUniqueFilename tries baseFmt (a fmt verb taking one int, e.g.
// "out.%d.ctx") with i = 0, 1, 2, ... up to 9999, returning the first name
// that does not already exist. Returns an error if all 10000 are taken.
func GenerateUniqueFilename(baseFmt string) (string, error) {
	for i := 0; i < 10000; i++ {
		name := fmt.Sprintf(baseFmt, i)
		if _, err := os.Stat(name); os.IsNotExist(err) {
			return name, nil
		}
	}
	return "", errors.Errorf("ioutil: could not find a unique name for %q after 10000 tries", baseFmt)
}

// TempFiles opens n scratch files alongside basePath (same directory), each
// named basePath plus a random run id and its index, and returns their
// paths. On any failure it closes and removes whatever it already opened
// and returns the error. Callers are responsible for removing the files
// when done -- see MergeTempFiles for the common sequential-merge-then-clean
// pattern.
func TempFiles(basePath string, n int) ([]string, error) {
	runID := rand.Intn(1 << 20)
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("%s.%d.%d", basePath, runID, i)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			for _, p := range paths {
				os.Remove(p)
			}
			return nil, errors.Wrapf(err, "ioutil: cannot write temporary file %s", path)
		}
		f.Close()
		paths = append(paths, path)
	}
	return paths, nil
}

// MergeTempFiles concatenates the files at paths, in order, into outPath,
// then removes every file in paths regardless of whether the merge
// succeeded.
func MergeTempFiles(outPath string, paths []string) (err error) {
	defer func() {
		for _, p := range paths {
			os.Remove(p)
		}
	}()

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "ioutil: cannot create %s", outPath)
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	for _, p := range paths {
		data, rerr := ioutil.ReadFile(p)
		if rerr != nil {
			return errors.Wrapf(rerr, "ioutil: cannot read temporary file %s", p)
		}
		if _, werr := out.Write(data); werr != nil {
			return errors.Wrapf(werr, "ioutil: cannot write %s", outPath)
		}
	}
	return nil
}
