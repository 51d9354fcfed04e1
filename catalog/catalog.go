// Package catalog lists the playable videos of a room and of the shared
// _default library.
package catalog

import (
	"net/url"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DefaultNamespace is the directory holding videos every room can play.
const DefaultNamespace = "_default"

var playable = map[string]bool{
	".mp4":  true,
	".webm": true,
	".ogg":  true,
}

// Entry is one playable file.
type Entry struct {
	Name string `json:"name"`
	Src  string `json:"src"`
}

// Catalog reads videos from <root>/<room> and <root>/_default.
type Catalog struct {
	fs   afero.Fs
	root string
}

// New creates a Catalog over fs rooted at root.
func New(fs afero.Fs, root string) *Catalog {
	return &Catalog{fs: fs, root: root}
}

// List returns the room's videos followed by the shared library. A missing
// or unreadable directory contributes nothing.
func (c *Catalog) List(room string) []Entry {
	entries := c.scan(room)
	return append(entries, c.scan(DefaultNamespace)...)
}

// Resolve picks the entry called name, else the first entry. ok is false
// when there is nothing to play.
func (c *Catalog) Resolve(room, name string) (Entry, bool) {
	entries := c.List(room)
	if len(entries) == 0 {
		return Entry{}, false
	}
	if name != "" {
		for _, e := range entries {
			if e.Name == name {
				return e, true
			}
		}
	}
	return entries[0], true
}

// Path maps a namespace and a client-supplied filename to a path on the
// catalog filesystem. The filename is cleaned and leading "../" segments are
// stripped so the result cannot leave the namespace directory.
func (c *Catalog) Path(namespace, filename string) (string, bool) {
	name := SanitizeName(filename)
	if name == "" {
		return "", false
	}
	return filepath.Join(c.root, namespace, filepath.FromSlash(name)), true
}

// SanitizeName normalizes a relative media path and strips any leading
// parent-directory segments. An empty result means nothing is addressable.
func SanitizeName(filename string) string {
	name := path.Clean(strings.ReplaceAll(filename, `\`, "/"))
	for {
		switch {
		case name == "..":
			return ""
		case strings.HasPrefix(name, "../"):
			name = name[3:]
		case strings.HasPrefix(name, "/"):
			name = strings.TrimLeft(name, "/")
		default:
			if name == "." {
				return ""
			}
			return name
		}
	}
}

func (c *Catalog) scan(namespace string) []Entry {
	infos, err := afero.ReadDir(c.fs, filepath.Join(c.root, namespace))
	if err != nil {
		return nil
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	var out []Entry
	for _, fi := range infos {
		if !fi.Mode().IsRegular() || !playable[strings.ToLower(filepath.Ext(fi.Name()))] {
			continue
		}
		out = append(out, Entry{
			Name: fi.Name(),
			Src:  "/videos/" + namespace + "/" + url.PathEscape(fi.Name()),
		})
	}
	return out
}
