package pipeline

import "errors"

// Phase sentinels. Callers match with errors.Is to tell which stage of the
// pipeline failed; the wrapped message carries the underlying cause.
var (
	ErrRetrieval      = errors.New("schema retrieval failed")
	ErrClassification = errors.New("question classification failed")
	ErrGeneration     = errors.New("query generation failed")
	ErrRepair         = errors.New("query execution failed")
)
