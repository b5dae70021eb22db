// Package preflight provides system validation and pre-flight checks
// to ensure folderindexctl can run successfully before starting operations.
//
// The package validates:
//   - Disk space availability (minimum 100MB)
//   - Memory availability (minimum 1GB, checked against a fixed 4GB
//     estimate; system memory is not measured)
//   - Write permissions in project directory
//   - File descriptor limits (minimum 1024)
//   - Embedding model presence and disk space for model files (non-critical)
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, "/path/to/folder", "")
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
