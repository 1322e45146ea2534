package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// tfStateDirName is tool-local state kept by tofu inside the working
// directory. It is excluded when the file set is read for prompting.
const tfStateDirName = ".terraform"

// seedWorkspace creates outputDir if needed and populates it from inputDir
// exactly once. A non-empty outputDir is left untouched so an interrupted
// repair run can be resumed. inputDir is never written to.
func seedWorkspace(inputDir, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output folder: %w", err)
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return fmt.Errorf("read output folder: %w", err)
	}
	if len(entries) > 0 {
		fmt.Printf("Output folder already contains files. Using existing files in %s.\n", outputDir)
		return nil
	}
	fmt.Println("Output folder is empty. Copying files from input folder to output folder.")
	if err := copyTree(inputDir, outputDir); err != nil {
		return fmt.Errorf("copy input folder: %w", err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}

// readWorkspaceFiles scans dir into a fileSet keyed by forward-slash
// relative paths, skipping the .terraform directory. WalkDir visits entries
// in lexical order, so the resulting set is deterministic.
func readWorkspaceFiles(dir string) (*fileSet, error) {
	files := newFileSet()
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == tfStateDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read file %s: %w", rel, err)
		}
		files.Set(filepath.ToSlash(rel), string(data))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// writeFixedFiles writes every file in fixes under dir, creating missing
// parent directories and overwriting existing files. The first failure
// aborts; files already written stay on disk.
func writeFixedFiles(dir string, fixes *fileSet) error {
	for _, rel := range fixes.Paths() {
		if !filepath.IsLocal(filepath.FromSlash(rel)) {
			return fmt.Errorf("refusing to write file outside workspace: %s", rel)
		}
		content, _ := fixes.Get(rel)
		target := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write file %s: %w", rel, err)
		}
		fmt.Printf("Fixed %s written to %s\n", rel, target)
	}
	return nil
}
