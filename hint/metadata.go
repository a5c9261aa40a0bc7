package hint

// Entry is one loop metadata entry: a name and a single integer argument.
type Entry struct {
	Name  string
	Value int
}

// Metadata is an ordered list of loop-attached entries. It is the only
// piece of program state this module ever mutates: SetAlreadyVectorized
// rewrites it once vectorization is finalized.
type Metadata struct {
	entries []Entry
}

// NewMetadata returns loop metadata holding the given entries.
func NewMetadata(entries ...Entry) *Metadata {
	return &Metadata{entries: entries}
}

// Entries returns the entries in order.
func (m *Metadata) Entries() []Entry {
	if m == nil {
		return nil
	}
	return m.entries
}

// Append adds an entry at the end.
func (m *Metadata) Append(e Entry) {
	m.entries = append(m.entries, e)
}

// replace swaps the entry list wholesale. Used by the finalize rewrite.
func (m *Metadata) replace(entries []Entry) {
	m.entries = entries
}
