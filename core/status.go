package core

import (
	"sync"
	"sync/atomic"
)

// ShardSnapshotStage is the lifecycle stage of one in-flight shard snapshot.
type ShardSnapshotStage string

const (
	StageInit     ShardSnapshotStage = "INIT"
	StageStarted  ShardSnapshotStage = "STARTED"
	StageFinalize ShardSnapshotStage = "FINALIZE"
	StageDone     ShardSnapshotStage = "DONE"
	StageFailed   ShardSnapshotStage = "FAILED"
	StageAborted  ShardSnapshotStage = "ABORTED"
)

// ShardSnapshotStatus tracks the in-memory lifecycle of a shard snapshot.
// The abort flag is sticky and polled by the uploader between reads; all
// other fields move under the mutex.
type ShardSnapshotStatus struct {
	mu sync.Mutex

	stage                ShardSnapshotStage
	startTime            int64
	endTime              int64
	incrementalFileCount int
	totalFileCount       int
	incrementalSize      int64
	totalSize            int64
	processedFiles       int
	processedSize        int64
	failure              string

	aborted atomic.Bool
}

// ShardSnapshotStatusCopy is a point-in-time view for observers.
type ShardSnapshotStatusCopy struct {
	Stage                ShardSnapshotStage
	StartTime            int64
	EndTime              int64
	IncrementalFileCount int
	TotalFileCount       int
	IncrementalSize      int64
	TotalSize            int64
	ProcessedFiles       int
	ProcessedSize        int64
	Failure              string
}

func NewShardSnapshotStatus() *ShardSnapshotStatus {
	return &ShardSnapshotStatus{stage: StageInit}
}

// MoveToStarted records the diff counters and enters STARTED.
func (s *ShardSnapshotStatus) MoveToStarted(startTime int64, incrementalFiles, totalFiles int, incrementalSize, totalSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = StageStarted
	s.startTime = startTime
	s.incrementalFileCount = incrementalFiles
	s.totalFileCount = totalFiles
	s.incrementalSize = incrementalSize
	s.totalSize = totalSize
}

// MoveToFinalize enters FINALIZE and returns the counters the commit point
// is built from.
func (s *ShardSnapshotStatus) MoveToFinalize() ShardSnapshotStatusCopy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = StageFinalize
	return s.copyLocked()
}

func (s *ShardSnapshotStatus) MoveToDone(endTime int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stage = StageDone
	s.endTime = endTime
}

func (s *ShardSnapshotStatus) MoveToFailed(endTime int64, failure string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted.Load() {
		s.stage = StageAborted
	} else {
		s.stage = StageFailed
	}
	s.endTime = endTime
	s.failure = failure
}

// Abort trips the sticky abort flag. Uploaders observe it via IsAborted
// between part writes and inside every read of the upload stream.
func (s *ShardSnapshotStatus) Abort() {
	s.aborted.Store(true)
}

func (s *ShardSnapshotStatus) IsAborted() bool {
	return s.aborted.Load()
}

// AddProcessedFile accounts one finished upload.
func (s *ShardSnapshotStatus) AddProcessedFile(size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedFiles++
	s.processedSize += size
}

func (s *ShardSnapshotStatus) Copy() ShardSnapshotStatusCopy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *ShardSnapshotStatus) copyLocked() ShardSnapshotStatusCopy {
	return ShardSnapshotStatusCopy{
		Stage:                s.stage,
		StartTime:            s.startTime,
		EndTime:              s.endTime,
		IncrementalFileCount: s.incrementalFileCount,
		TotalFileCount:       s.totalFileCount,
		IncrementalSize:      s.incrementalSize,
		TotalSize:            s.totalSize,
		ProcessedFiles:       s.processedFiles,
		ProcessedSize:        s.processedSize,
		Failure:              s.failure,
	}
}
