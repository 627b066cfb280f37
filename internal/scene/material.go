package scene

import "sync"

// DefaultMaterialName is the plain lit material new meshes get so they are visible
const DefaultMaterialName = "BasicShapeMaterial"

// Material is a named surface the host renderer knows how to draw
type Material struct {
	Name string
	Path string // asset path in the host project
}

// MaterialLibrary is the set of materials the scene can assign
type MaterialLibrary struct {
	mu          sync.RWMutex
	materials   map[string]Material
	defaultName string
}

// NewMaterialLibrary returns a library holding the basic shape material as default
func NewMaterialLibrary() *MaterialLibrary {
	lib := &MaterialLibrary{materials: make(map[string]Material)}
	lib.Register(Material{Name: DefaultMaterialName, Path: "/Engine/BasicShapes/BasicShapeMaterial"})
	lib.SetDefault(DefaultMaterialName)
	return lib
}

// NewEmptyMaterialLibrary has no materials and therefore no default
func NewEmptyMaterialLibrary() *MaterialLibrary {
	return &MaterialLibrary{materials: make(map[string]Material)}
}

func (l *MaterialLibrary) Register(m Material) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.materials[m.Name] = m
}

// SetDefault picks the default; returns false if name is not registered
func (l *MaterialLibrary) SetDefault(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.materials[name]; !ok {
		return false
	}
	l.defaultName = name
	return true
}

func (l *MaterialLibrary) Lookup(name string) (Material, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.materials[name]
	return m, ok
}

func (l *MaterialLibrary) Default() (Material, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.defaultName == "" {
		return Material{}, false
	}
	m, ok := l.materials[l.defaultName]
	return m, ok
}
