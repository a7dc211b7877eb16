package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aissist/indexbot/internal/config"
	"github.com/aissist/indexbot/internal/loader"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status as its name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// DefaultHTTPTimeout bounds each request to Ollama.
const DefaultHTTPTimeout = 5 * time.Second

// Checker performs preflight validation checks for one project.
type Checker struct {
	cfg      *config.Config
	offline  bool
	verbose  bool
	output   io.Writer
	client   *http.Client
	lookPath func(string) (string, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithOffline skips the Ollama checks; the static embedder needs no server.
func WithOffline(offline bool) Option {
	return func(c *Checker) {
		c.offline = offline
	}
}

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithHTTPClient replaces the client used to reach Ollama.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithLookPath replaces exec.LookPath for external tool checks.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Checker) {
		c.lookPath = fn
	}
}

// New creates a Checker for the project described by cfg.
func New(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:      cfg,
		output:   os.Stdout,
		client:   &http.Client{Timeout: DefaultHTTPTimeout},
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check and returns the results in display order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	base := existingAncestor(c.cfg.ProjectDir())

	results := []CheckResult{
		c.CheckDiskSpace(base),
		c.CheckWritePermissions(base),
		c.CheckFileDescriptors(),
		c.CheckInputDir(),
	}
	results = append(results, c.CheckOllama(ctx)...)
	results = append(results, c.CheckAntiword())
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	title := fmt.Sprintf("indexbot doctor: %s", c.cfg.Project.Name)
	_, _ = fmt.Fprintln(c.output, title)
	_, _ = fmt.Fprintln(c.output, strings.Repeat("=", len(title)))
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if c.verbose && r.Details != "" {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var warnings, errs []string
	for _, r := range results {
		switch {
		case r.IsCritical():
			errs = append(errs, r.Name+": "+r.Message)
		case r.Status != StatusPass:
			warnings = append(warnings, r.Name+": "+r.Message)
		}
	}

	printList := func(label string, items []string) {
		if len(items) == 0 {
			return
		}
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d %s:\n", len(items), label)
		for _, item := range items {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", item)
		}
	}
	printList("error(s)", errs)
	printList("warning(s)", warnings)
}

// CheckWritePermissions checks that files can be created under path.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{
		Name:     "write_permissions",
		Required: true,
	}

	f, err := os.CreateTemp(path, ".indexbot-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot write to %s: %v", path, err)
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = path
	return result
}

// CheckInputDir reports how many documents are waiting in input/. A missing
// or empty directory is a warning: the build succeeds with an empty corpus.
func (c *Checker) CheckInputDir() CheckResult {
	dir := c.cfg.InputDir()
	result := CheckResult{
		Name:    "input_dir",
		Details: dir,
	}

	count := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result.Status = StatusWarn
		result.Message = "missing (add documents with 'indexbot add')"
	case err != nil:
		result.Status = StatusFail
		result.Required = true
		result.Message = fmt.Sprintf("cannot read: %v", err)
	case count == 0:
		result.Status = StatusWarn
		result.Message = "no documents"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d file(s)", count)
	}
	return result
}

// CheckAntiword reports whether legacy .doc files can be converted.
func (c *Checker) CheckAntiword() CheckResult {
	result := CheckResult{Name: "antiword"}

	path, err := c.lookPath(loader.DefaultAntiwordBinary)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "not installed (.doc files will be skipped)"
		return result
	}

	result.Status = StatusPass
	result.Message = path
	return result
}

// existingAncestor returns path or its nearest parent that exists, so the
// checks work before the project has been created.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
