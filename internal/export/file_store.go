package export

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// FileStore writes baked meshes as Wavefront OBJ files under one directory.
type FileStore struct {
	dir string
}

// constructor for FileStore, creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory artifacts are written to
func (s *FileStore) Dir() string {
	return s.dir
}

// Exists reports whether an artifact called name is already stored
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name+".obj"))
	return err == nil
}

// Remove deletes the artifact called name; a missing file is not an error
func (s *FileStore) Remove(name string) error {
	err := os.Remove(filepath.Join(s.dir, name+".obj"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Save writes b to <dir>/<name>.obj and returns the path.
// The file is written under a temp name and renamed so readers never see
// a half-written mesh.
func (s *FileStore) Save(b *BakedMesh) (string, error) {
	final := filepath.Join(s.dir, b.Name+".obj")

	tmp, err := os.CreateTemp(s.dir, "."+b.Name+"-*.obj.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if err := writeOBJ(tmp, b); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write %s: %w", b.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", b.Name, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", b.Name, err)
	}
	return final, nil
}

func writeOBJ(f *os.File, b *BakedMesh) error {
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# meshhub baked asset\n# tag %s\n# fingerprint %s\no %s\n", b.EntityTag, b.Fingerprint, b.Name)
	for _, v := range b.Positions {
		w.WriteString("v ")
		w.WriteString(formatFloat(v.X))
		w.WriteByte(' ')
		w.WriteString(formatFloat(v.Y))
		w.WriteByte(' ')
		w.WriteString(formatFloat(v.Z))
		w.WriteByte('\n')
	}
	// OBJ face indices are 1-based
	for _, t := range b.Triangles {
		fmt.Fprintf(w, "f %d %d %d\n", t[0]+1, t[1]+1, t[2]+1)
	}
	return w.Flush()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
