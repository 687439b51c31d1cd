// Package storage provides the key to blob stores that hold room metadata
// and history. Keys are slash separated paths such as "lobby/room.json".
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

type BlobStore interface {
	// Read returns ErrNotFound when nothing is stored under key.
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
	// List returns the names directly below dir; "" lists the top level.
	List(ctx context.Context, dir string) ([]string, error)
	Close() error
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty storage key")
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("invalid storage key %q", key)
		}
	}
	return nil
}

func dirPrefix(dir string) string {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return ""
	}
	return dir + "/"
}

// children reduces full keys to the distinct names directly below dir.
func children(keys []string, dir string) []string {
	prefix := dirPrefix(dir)
	seen := make(map[string]bool)
	var out []string
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(key, prefix), "/")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
