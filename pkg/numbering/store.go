package numbering

// documentLoader and documentSaver mirror pkg/store's Load/Save so this
// package doesn't import store directly; callers (the sync engine,
// tests) wire the concrete *store.Store in.
type documentLoader interface {
	Load(name string, out interface{}) error
	Exists(name string) bool
}

type documentSaver interface {
	Save(name string, v interface{}) error
}

const registryDoc = "number_registry"

// Load reads the number registry document, returning a freshly
// initialised registry when none exists yet.
func Load(s interface {
	documentLoader
}, epicBase, blockSize int) (*Registry, error) {
	if !s.Exists(registryDoc) {
		return NewRegistry(epicBase, blockSize), nil
	}
	var reg Registry
	if err := s.Load(registryDoc, &reg); err != nil {
		return nil, err
	}
	if reg.Epics == nil {
		reg.Epics = make(map[int]EpicRange)
	}
	if reg.Stories == nil {
		reg.Stories = make(map[string]StoryAssignment)
	}
	return &reg, nil
}

// Save persists the registry document.
func Save(s documentSaver, reg *Registry) error {
	return s.Save(registryDoc, reg)
}
