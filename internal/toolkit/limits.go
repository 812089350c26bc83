package toolkit

// OutputLimits bounds how much a single tool call (or the whole turn) may
// emit back into history, grounded on the teacher's tools.OutputLimits.
type OutputLimits struct {
	MaxLines       int   // read: max lines per call (default 2000)
	MaxBytes       int64 // max bytes per tool output (default 50KB)
	MaxResults     int   // grep: max results (default 100); glob uses its own fixed cap of 200
	CumulativeSoft int64 // soft cumulative limit per turn (default 100KB)
	CumulativeHard int64 // hard cumulative limit per turn (default 200KB)
}

func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:       2000,
		MaxBytes:       50 * 1024,
		MaxResults:     100,
		CumulativeSoft: 100 * 1024,
		CumulativeHard: 200 * 1024,
	}
}
