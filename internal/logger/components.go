package logger

// Component names
const (
	ComponentAnalysis    = "Analysis"
	ComponentObservation = "Observation"
	ComponentDatabase    = "Database"
	ComponentResults     = "Results"
	ComponentQueue       = "Queue"
	ComponentDefinition  = "Definition"
	ComponentCLI         = "CLI"
	ComponentAnalyzer    = "Analyzer"
	ComponentIngest      = "Ingest"
)
