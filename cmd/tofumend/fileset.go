package main

// fileSet is an ordered mapping of workspace-relative paths (forward-slash
// separated) to full file contents. Insertion order is preserved so that
// prompts built from a scan are deterministic.
type fileSet struct {
	order    []string
	contents map[string]string
}

func newFileSet() *fileSet {
	return &fileSet{contents: make(map[string]string)}
}

// Set adds or replaces a file. Replacing keeps the original position.
func (fs *fileSet) Set(path, content string) {
	if _, ok := fs.contents[path]; !ok {
		fs.order = append(fs.order, path)
	}
	fs.contents[path] = content
}

func (fs *fileSet) Get(path string) (string, bool) {
	content, ok := fs.contents[path]
	return content, ok
}

func (fs *fileSet) Len() int {
	return len(fs.order)
}

// Paths returns the stored paths in insertion order.
func (fs *fileSet) Paths() []string {
	paths := make([]string, len(fs.order))
	copy(paths, fs.order)
	return paths
}
