// Package protoinfo resolves numeric IP protocol ids to their libc constant
// and human readable names, backed by a JSON table shipped with the server.
package protoinfo

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/spear-it/spearhead/internal/core/domain"
)

// unknownName is returned for protocol ids missing from the table.
const unknownName = "N/A"

type tableEntry struct {
	Libc string `json:"libc"`
	Name string `json:"name"`
}

// Resolver lazily loads the protocol table on first lookup. Safe for
// concurrent use.
type Resolver struct {
	path string

	once    sync.Once
	loadErr error
	entries map[int64]tableEntry
}

// NewResolver points a resolver at a protocol table file. The file is not
// touched until the first Resolve call.
func NewResolver(path string) *Resolver {
	return &Resolver{path: path}
}

func (r *Resolver) load() error {
	r.once.Do(func() {
		raw, err := os.ReadFile(r.path)
		if err != nil {
			r.loadErr = fmt.Errorf("protocol table %s: %w", r.path, err)
			return
		}
		var byID map[string]tableEntry
		if err := json.Unmarshal(raw, &byID); err != nil {
			r.loadErr = fmt.Errorf("protocol table %s: %w", r.path, err)
			return
		}
		r.entries = make(map[int64]tableEntry, len(byID))
		for idStr, entry := range byID {
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				r.loadErr = fmt.Errorf("protocol table %s: bad id %q", r.path, idStr)
				return
			}
			r.entries[id] = entry
		}
	})
	return r.loadErr
}

// Resolve maps a protocol id to its names. Unknown ids resolve to N/A rather
// than failing, so a new protocol on the wire never blocks ingestion.
func (r *Resolver) Resolve(id int64) domain.ProtocolInfo {
	// Startup calls Check, so a load failure here means the table vanished
	// at runtime. Degrade to unknowns; events must keep flowing.
	if err := r.load(); err != nil {
		return domain.ProtocolInfo{ID: id, LibcName: unknownName, Name: unknownName}
	}
	entry, ok := r.entries[id]
	if !ok {
		return domain.ProtocolInfo{ID: id, LibcName: unknownName, Name: unknownName}
	}
	return domain.ProtocolInfo{ID: id, LibcName: entry.Libc, Name: entry.Name}
}

// Check eagerly loads the table so startup can fail fast on a bad path.
func (r *Resolver) Check() error {
	return r.load()
}
