package inference

// ModelDescriptor is the read-only description of a model as far as the
// orchestration core is concerned. ContextTokens is the source of truth for
// the context budget.
type ModelDescriptor struct {
	ID            string `yaml:"id" json:"id"`
	Name          string `yaml:"name" json:"name"`
	ContextTokens int    `yaml:"context_tokens" json:"context_tokens"`
	Loaded        bool   `yaml:"-" json:"loaded"`
}

// MemoryStatus is the pre-flight memory-pressure reading.
type MemoryStatus string

const (
	MemoryOK       MemoryStatus = "ok"
	MemoryWarning  MemoryStatus = "warning"
	MemoryCritical MemoryStatus = "critical"
	MemoryUnknown  MemoryStatus = "unknown"
)
