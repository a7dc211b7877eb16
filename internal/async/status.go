// Package async runs long operations off the caller's path: a bounded
// worker pool for builds and queries, and a progress tracker for builds.
package async

import (
	"sync"
	"time"
)

// IndexingStatus represents the overall build state.
type IndexingStatus string

const (
	// StatusIndexing indicates a build is in progress.
	StatusIndexing IndexingStatus = "indexing"
	// StatusReady indicates the build finished and the index is published.
	StatusReady IndexingStatus = "ready"
	// StatusError indicates the build failed.
	StatusError IndexingStatus = "error"
)

// IndexingStage represents the current stage of a build.
type IndexingStage string

const (
	// StageScanning indicates enumeration of input/.
	StageScanning IndexingStage = "scanning"
	// StageLoading indicates text extraction from documents.
	StageLoading IndexingStage = "loading"
	// StageEmbedding indicates embedding of chunks.
	StageEmbedding IndexingStage = "embedding"
	// StagePersisting indicates the index is being written.
	StagePersisting IndexingStage = "persisting"
)

// IndexProgressSnapshot is an immutable snapshot of build progress.
type IndexProgressSnapshot struct {
	Status          string  `json:"status"`
	Stage           string  `json:"stage"`
	FilesTotal      int     `json:"files_total"`
	FilesProcessed  int     `json:"files_processed"`
	FilesFailed     int     `json:"files_failed"`
	ChunksTotal     int     `json:"chunks_total"`
	ChunksEmbedded  int     `json:"chunks_embedded"`
	ProgressPct     float64 `json:"progress_pct"`
	ElapsedSeconds  int     `json:"elapsed_seconds"`
	ErrorMessage    string  `json:"error_message,omitempty"`
	CurrentFilePath string  `json:"current_file,omitempty"`
}

// IndexProgress provides thread-safe tracking of build progress.
type IndexProgress struct {
	mu sync.RWMutex

	status         IndexingStatus
	stage          IndexingStage
	filesTotal     int
	filesProcessed int
	filesFailed    int
	currentFile    string
	chunksTotal    int
	chunksEmbedded int
	startTime      time.Time
	errorMessage   string
}

// NewIndexProgress creates a new progress tracker initialized for indexing.
func NewIndexProgress() *IndexProgress {
	return &IndexProgress{
		status:    StatusIndexing,
		stage:     StageScanning,
		startTime: time.Now(),
	}
}

// Reset starts tracking a new build.
func (p *IndexProgress) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusIndexing
	p.stage = StageScanning
	p.filesTotal, p.filesProcessed, p.filesFailed = 0, 0, 0
	p.currentFile = ""
	p.chunksTotal, p.chunksEmbedded = 0, 0
	p.startTime = time.Now()
	p.errorMessage = ""
}

// SetStage updates the current stage.
func (p *IndexProgress) SetStage(stage IndexingStage) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stage = stage
}

// SetFilesTotal sets the number of files found in input/.
func (p *IndexProgress) SetFilesTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesTotal = total
}

// FileDone records one processed file.
func (p *IndexProgress) FileDone(path string, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filesProcessed++
	p.currentFile = path
	if failed {
		p.filesFailed++
	}
}

// SetChunksTotal sets the total number of chunks to embed.
func (p *IndexProgress) SetChunksTotal(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksTotal = total
}

// AddChunks records n more embedded chunks. Safe from many goroutines.
func (p *IndexProgress) AddChunks(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunksEmbedded += n
}

// SetError marks the build as failed with an error message.
func (p *IndexProgress) SetError(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusError
	p.errorMessage = message
}

// SetReady marks the build as complete.
func (p *IndexProgress) SetReady() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = StatusReady
}

// IsIndexing returns true if a build is still in progress.
func (p *IndexProgress) IsIndexing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.status == StatusIndexing
}

// Snapshot returns an immutable copy of the current progress state.
// Progress is weighted: loading counts for the first 30%, embedding for
// the rest.
func (p *IndexProgress) Snapshot() IndexProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var progressPct float64
	if p.filesTotal > 0 {
		progressPct = float64(p.filesProcessed) / float64(p.filesTotal) * 30.0
	}
	if p.chunksTotal > 0 {
		progressPct = 30.0 + float64(p.chunksEmbedded)/float64(p.chunksTotal)*70.0
	}
	if p.status == StatusReady {
		progressPct = 100
	}

	return IndexProgressSnapshot{
		Status:          string(p.status),
		Stage:           string(p.stage),
		FilesTotal:      p.filesTotal,
		FilesProcessed:  p.filesProcessed,
		FilesFailed:     p.filesFailed,
		ChunksTotal:     p.chunksTotal,
		ChunksEmbedded:  p.chunksEmbedded,
		ProgressPct:     progressPct,
		ElapsedSeconds:  int(time.Since(p.startTime).Seconds()),
		ErrorMessage:    p.errorMessage,
		CurrentFilePath: p.currentFile,
	}
}
