// Package types defines the data model shared by the storage driver, the
// backup engine and the restore orchestrator: manifests, token maps and the
// backup mode enum. These types are deliberately free of any storage or
// network dependency so they can be marshalled as-is to and from JSON.
package types

// BackupMode distinguishes a self-contained backup from one that shares its
// data pool with every other incremental backup on the same node.
type BackupMode string

const (
	ModeFull        BackupMode = "full"
	ModeIncremental BackupMode = "incremental"
)

// ManifestObject identifies a single uploaded SSTable (or meta file) inside
// a node backup. Path is storage-relative starting at the node's fqdn. MD5
// is base64-encoded, whichever encoding the backend reports on put.
type ManifestObject struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	MD5  string `json:"MD5"`
}

// KeyspaceTableSection groups the objects backed up for one table.
type KeyspaceTableSection struct {
	Keyspace     string           `json:"keyspace"`
	ColumnFamily string           `json:"columnfamily"`
	Objects      []ManifestObject `json:"objects"`
}

// Manifest is the ordered list of table sections persisted as manifest.json.
type Manifest []KeyspaceTableSection

// TotalObjects returns the number of ManifestObject entries across all sections.
func (m Manifest) TotalObjects() int {
	n := 0
	for _, s := range m {
		n += len(s.Objects)
	}
	return n
}

// Find returns the object at the given path and true, or the zero value and
// false if no section contains it.
func (m Manifest) Find(path string) (ManifestObject, bool) {
	for _, s := range m {
		for _, o := range s.Objects {
			if o.Path == path {
				return o, true
			}
		}
	}
	return ManifestObject{}, false
}

// TokenMapEntry is one node's ring position and liveness as seen at backup time.
type TokenMapEntry struct {
	Tokens []string `json:"tokens"`
	IsUp   bool     `json:"is_up"`
}

// TokenMap maps a node's fqdn to its ring tokens. Persisted as tokenmap.json.
type TokenMap map[string]TokenMapEntry

// Fqdns returns the map's keys, unsorted.
func (t TokenMap) Fqdns() []string {
	out := make([]string, 0, len(t))
	for fqdn := range t {
		out = append(out, fqdn)
	}
	return out
}

// ReservedKeyspaces are excluded from backup: their data directories are
// not uploaded and their statements are dropped from the saved schema.
var ReservedKeyspaces = map[string]bool{
	"system_traces": true,
}

// NeverCached file basenames are never served from the node backup cache,
// regardless of whether a matching entry exists in the previous manifest.
var NeverCached = map[string]bool{
	"manifest.json": true,
}
