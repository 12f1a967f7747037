package rvhal

// resetCore forgets the process-wide hart.
func resetCore() { core.Store(nil) }
