package domain

import "time"

// SourceKind tells the resolver how to materialize a source tree.
type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote-repo"
)

// Source is one entry of the sources file, normalized.
type Source struct {
	Name    string
	Kind    SourceKind
	Path    string // local only
	URL     string // remote only
	Ref     string // remote only
	Include []string
	Exclude []string
	Dest    string
}

// Location returns the human-readable origin of the source.
func (s Source) Location() string {
	if s.Kind == SourceRemote {
		return s.URL + "@" + s.Ref
	}
	return s.Path
}

type Outcome string

const (
	OutcomeCopied  Outcome = "copied"
	OutcomeSkipped Outcome = "skipped-identical"
	OutcomeDenied  Outcome = "denied"
)

type StagedFile struct {
	Source  string  `json:"source"`
	Dest    string  `json:"dest"`
	Outcome Outcome `json:"outcome"`
	Note    string  `json:"note,omitempty"`
}

type SourceResult struct {
	Name     string       `json:"name"`
	Kind     SourceKind   `json:"kind"`
	Location string       `json:"location"`
	Dest     string       `json:"dest"`
	Included int          `json:"included"`
	Copied   int          `json:"copied"`
	Skipped  int          `json:"skipped"`
	Denied   int          `json:"denied"`
	Pruned   []string     `json:"pruned,omitempty"`
	Files    []StagedFile `json:"files"`
	Error    string       `json:"error,omitempty"`
}

// Add records a staged file and bumps the matching counter.
func (r *SourceResult) Add(f StagedFile) {
	switch f.Outcome {
	case OutcomeCopied:
		r.Included++
		r.Copied++
	case OutcomeSkipped:
		r.Included++
		r.Skipped++
	case OutcomeDenied:
		r.Denied++
	}
	r.Files = append(r.Files, f)
}

type SyncReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	DryRun      bool           `json:"dry_run"`
	Destination string         `json:"destination"`
	Sources     []SourceResult `json:"sources"`
	Errors      int            `json:"errors"`
}

// ChunkRecord is one line of the chunk manifest.
type ChunkRecord struct {
	File  string `json:"file"`
	Chunk int    `json:"chunk"`
	ID    string `json:"id"`
	Len   int    `json:"len"`
}

// ChunkText pairs a chunk identifier with the text to embed.
type ChunkText struct {
	ID   string
	Text string
}

// EmbeddingRecord is one line of the embeddings manifest.
type EmbeddingRecord struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Len       int       `json:"len"`
}

type Distance string

const (
	DistanceCosine  Distance = "cosine"
	DistanceDot     Distance = "dot"
	DistanceEuclid  Distance = "euclid"
	DistanceUnknown Distance = "unknown"
)

// ParseDistance maps user input onto a Distance. Unrecognized values map to
// DistanceUnknown.
func ParseDistance(s string) Distance {
	switch s {
	case "cosine", "Cosine", "COSINE":
		return DistanceCosine
	case "dot", "Dot", "DOT":
		return DistanceDot
	case "euclid", "Euclid", "EUCLID", "euclidean":
		return DistanceEuclid
	default:
		return DistanceUnknown
	}
}

// CollectionInfo describes an existing vector collection. Dimension 0 means
// the store did not report it.
type CollectionInfo struct {
	Name      string
	Dimension int
	Distance  Distance
}

// Known reports whether both dimension and distance were resolved.
func (c CollectionInfo) Known() bool {
	return c.Dimension > 0 && c.Distance != DistanceUnknown
}

type UpsertResult struct {
	Collection string
	Points     int
	Created    bool
	Recreated  bool
}
