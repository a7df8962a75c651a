package core

// Question is one entry of a gold-standard question set.
// Questions are immutable and loaded once per run.
type Question struct {
	// ID is stable within a question set (Spider ids look like "dev_0042").
	ID string `json:"question_id" yaml:"id"`
	// Database is the logical database, i.e. the schema in the shared store.
	Database string `json:"database" yaml:"database"`
	// Text is the natural-language question.
	Text string `json:"question" yaml:"question"`
	// GoldSQL is the reference query in the source (SQLite-like) dialect.
	GoldSQL string `json:"gold_sql" yaml:"gold_sql"`
	// Difficulty is optional; Spider 1.0 dev has none.
	Difficulty string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}
