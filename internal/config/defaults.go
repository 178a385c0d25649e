package config

// Default configuration values.
const (
	DefaultLogLevel    = "warn"
	DefaultOutput      = "table"
	DefaultJournalPath = ".leapdata/journal.db"
	DefaultProvider    = "none"
)

// File names searched for, in order.
var configFileNames = []string{"leapdata.yaml", "leapdata.yml"}

func defaults() map[string]any {
	return map[string]any{
		"log_level":           DefaultLogLevel,
		"output":              DefaultOutput,
		"journal":             DefaultJournalPath,
		"verbose":             false,
		"no_journal":          false,
		"decryption.provider": DefaultProvider,
	}
}
