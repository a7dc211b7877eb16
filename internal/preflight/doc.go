// Package preflight checks that a project can be built and queried before
// any work starts: free disk and write access under the project base, the
// file descriptor limit, the input directory, the Ollama models the
// project is configured for, and the antiword converter for legacy .doc
// files.
//
//	checker := preflight.New(cfg)
//	results := checker.RunAll(ctx)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to build
//	}
package preflight
