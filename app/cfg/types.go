package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir      string
	Port            string
	RefreshInterval int
	FetchTimeout    int
	APIAccessKey    string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
