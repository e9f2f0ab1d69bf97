// Package metainfo reads .torrent files.
package metainfo

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/edsrzf/mmap-go"
	"github.com/rudransh-shrivastava/bttrack/internal/bencode"
	"github.com/rudransh-shrivastava/bttrack/internal/protocol"
)

var ErrInvalidMetainfo = errors.New("invalid metainfo")

type File struct {
	Length int64
	Path   []string
}

type Info struct {
	Name        string
	PieceLength int64
	PieceCount  int
	// Length is set for single-file torrents, Files for multi-file ones.
	Length  int64
	Files   []File
	Private bool
}

type MetaInfo struct {
	Announce     string
	AnnounceList [][]string
	Comment      string
	CreatedBy    string
	CreationDate int64
	Info         Info
	InfoHash     protocol.InfoHash
}

// Load memory-maps path and parses it.
func Load(path string) (*MetaInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidMetainfo, path)
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	defer m.Unmap()

	// The decoder copies byte strings out of the mapping.
	return Parse(m)
}

func Parse(data []byte) (*MetaInfo, error) {
	root, err := bencode.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if root.Kind() != bencode.Dictionary {
		return nil, fmt.Errorf("%w: top level is a %s", ErrInvalidMetainfo, root.Kind())
	}

	infoValue, ok := root.Get("info")
	if !ok || infoValue.Kind() != bencode.Dictionary {
		return nil, fmt.Errorf("%w: missing info dictionary", ErrInvalidMetainfo)
	}

	mi := &MetaInfo{
		Announce:     text(root, "announce"),
		Comment:      text(root, "comment"),
		CreatedBy:    text(root, "created by"),
		CreationDate: integer(root, "creation date"),
	}

	if tiers, ok := list(root, "announce-list"); ok {
		for _, tier := range tiers {
			urls, ok := tier.List()
			if !ok {
				return nil, fmt.Errorf("%w: announce-list tier is a %s", ErrInvalidMetainfo, tier.Kind())
			}
			var t []string
			for _, u := range urls {
				if s, ok := u.Text(); ok && s != "" {
					t = append(t, s)
				}
			}
			if len(t) > 0 {
				mi.AnnounceList = append(mi.AnnounceList, t)
			}
		}
	}

	if mi.Info, err = parseInfo(infoValue); err != nil {
		return nil, err
	}

	// Decoding accepts only canonical input, so re-encoding reproduces the
	// original info bytes.
	raw, err := bencode.Encode(infoValue)
	if err != nil {
		return nil, err
	}
	mi.InfoHash = sha1.Sum(raw)

	return mi, nil
}

func parseInfo(v bencode.Value) (Info, error) {
	info := Info{
		Name:        text(v, "name"),
		PieceLength: integer(v, "piece length"),
		Length:      integer(v, "length"),
		Private:     integer(v, "private") == 1,
	}

	if pieces, ok := v.Get("pieces"); ok {
		b, _ := pieces.Bytes()
		if len(b)%sha1.Size != 0 {
			return Info{}, fmt.Errorf("%w: pieces length %d is not a multiple of %d", ErrInvalidMetainfo, len(b), sha1.Size)
		}
		info.PieceCount = len(b) / sha1.Size
	}

	if files, ok := list(v, "files"); ok {
		for _, fv := range files {
			f := File{Length: integer(fv, "length")}
			parts, _ := list(fv, "path")
			for _, p := range parts {
				if s, ok := p.Text(); ok {
					f.Path = append(f.Path, s)
				}
			}
			if len(f.Path) == 0 {
				return Info{}, fmt.Errorf("%w: file entry without a path", ErrInvalidMetainfo)
			}
			info.Files = append(info.Files, f)
		}
	}

	if info.Name == "" {
		return Info{}, fmt.Errorf("%w: info has no name", ErrInvalidMetainfo)
	}
	return info, nil
}

// TotalLength is the sum of all file lengths.
func (mi *MetaInfo) TotalLength() int64 {
	if len(mi.Info.Files) == 0 {
		return mi.Info.Length
	}
	var n int64
	for _, f := range mi.Info.Files {
		n += f.Length
	}
	return n
}

// Trackers flattens the announce-list tiers, falling back to announce, with
// duplicates removed.
func (mi *MetaInfo) Trackers() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}

	for _, tier := range mi.AnnounceList {
		for _, u := range tier {
			add(u)
		}
	}
	if len(out) == 0 {
		add(mi.Announce)
	}
	return out
}

func (mi *MetaInfo) UDPTrackers() []string {
	var out []string
	for _, u := range mi.Trackers() {
		if strings.HasPrefix(u, "udp://") {
			out = append(out, u)
		}
	}
	return out
}

func text(v bencode.Value, key string) string {
	item, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, _ := item.Text()
	return s
}

func integer(v bencode.Value, key string) int64 {
	item, ok := v.Get(key)
	if !ok {
		return 0
	}
	n, _ := item.Integer()
	return n
}

func list(v bencode.Value, key string) ([]bencode.Value, bool) {
	item, ok := v.Get(key)
	if !ok {
		return nil, false
	}
	return item.List()
}
