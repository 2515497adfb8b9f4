package source

// Source is one configured feed, loaded from a YAML file in the
// sources directory. Name is derived from the filename.
type Source struct {
	Name    string `yaml:"-"`
	URL     string `yaml:"url"`
	Label   string `yaml:"label"`
	Enabled bool   `yaml:"enabled"`
}

// Info is the channel-level metadata reported by a source probe.
type Info struct {
	Title       string
	Description string
	ImageURL    string
	ItemCount   int
}
