// Package catalog lists the image categories and images that make up the
// passcode board. Categories are the directories directly under the images
// root; images are the regular files inside each category directory. Every
// call reads the directory tree again.
package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Provider enumerates categories and their images in lexicographic order.
type Provider interface {
	ListCategories(ctx context.Context) ([]string, error)
	ListImages(ctx context.Context, category string) ([]string, error)
}

// ValidCategory rejects names that could address anything outside the images
// root: empty names, names containing a path separator, and names starting
// with a dot (which covers "." and "..").
func ValidCategory(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}

// DirProvider reads categories from a directory on disk.
type DirProvider struct {
	root string
}

// NewDirProvider returns a provider rooted at dir.
func NewDirProvider(dir string) *DirProvider { return &DirProvider{root: dir} }

// ListCategories returns the sub-directory names of the root. A missing root
// yields an empty list.
func (p *DirProvider) ListCategories(ctx context.Context) ([]string, error) {
	entries, err := p.readDir(ctx, p.root)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() && ValidCategory(e.Name()) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// ListImages returns the file names inside category. Invalid or unknown
// categories yield an empty list.
func (p *DirProvider) ListImages(ctx context.Context, category string) ([]string, error) {
	if !ValidCategory(category) {
		return []string{}, nil
	}
	entries, err := p.readDir(ctx, filepath.Join(p.root, category))
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *DirProvider) readDir(ctx context.Context, dir string) ([]fs.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			return nil, nil
		}
		var pe *fs.PathError
		if errors.As(err, &pe) && isNotDir(pe) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

func isNotDir(pe *fs.PathError) bool {
	info, err := os.Stat(pe.Path)
	return err == nil && !info.IsDir()
}

// All returns every image of every category as a qualified "category/image"
// reference, grouped by category in listing order.
func All(ctx context.Context, p Provider) ([]string, error) {
	cats, err := p.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range cats {
		imgs, err := p.ListImages(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, img := range imgs {
			out = append(out, c+"/"+img)
		}
	}
	return out, nil
}
