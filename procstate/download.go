package procstate

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Stage is one step of the download state machine (spec §3 DownloadState).
type Stage string

const (
	StageInitializing  Stage = "initializing"
	StageDownloading   Stage = "downloading"
	StageVerifying     Stage = "verifying"
	StageDecompressing Stage = "decompressing"
	StageProcessing    Stage = "processing"
	StageFinalizing    Stage = "finalizing"
	StageComplete      Stage = "complete"
	StageFailed        Stage = "failed"
)

// CheckpointPolicy bounds how often a checkpoint is written: whichever of
// the sequence or byte interval fires first (spec §4.12, values adopted
// verbatim from the original's workspace.rs).
type CheckpointPolicy struct {
	SequenceInterval int64
	ByteInterval     int64
}

// DefaultCheckpointPolicy is the original's default cadence.
func DefaultCheckpointPolicy() CheckpointPolicy {
	return CheckpointPolicy{SequenceInterval: 500_000, ByteInterval: 1_000_000_000}
}

// Checkpoint is one pushed prior-stage snapshot, enabling RestoreLastCheckpoint.
type Checkpoint struct {
	Stage              Stage     `json:"stage"`
	BytesDone          int64     `json:"bytes_done"`
	SequencesProcessed int64     `json:"sequences_processed"`
	FileOffset         int64     `json:"file_offset"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// DownloadState is the full per-workspace download/ingest progress record.
type DownloadState struct {
	Stage      Stage  `json:"stage"`
	BytesDone  int64  `json:"bytes_done"`
	TotalBytes int64  `json:"total_bytes"`
	URL        string `json:"url"`
	Checksum   string `json:"checksum,omitempty"`

	WorkspacePath     string   `json:"workspace_path"`
	CompressedPath    string   `json:"compressed_path,omitempty"`
	DecompressedPath  string   `json:"decompressed_path,omitempty"`
	PartialPath       string   `json:"partial_path,omitempty"`
	TempToDelete      []string `json:"temp_to_delete,omitempty"`
	PreserveOnFailure bool     `json:"preserve_on_failure"`

	CheckpointStack []Checkpoint `json:"checkpoint_stack,omitempty"`
	Owner           Owner        `json:"owner"`

	SequencesProcessed int64  `json:"sequences_processed"`
	FileOffset         int64  `json:"file_offset"`
	LastSequenceID     string `json:"last_sequence_id,omitempty"`

	FailureMessage     string    `json:"failure_message,omitempty"`
	FailureRecoverable bool      `json:"failure_recoverable,omitempty"`
	FailedAt           time.Time `json:"failed_at,omitempty"`

	lastCheckpointSeq   int64
	lastCheckpointBytes int64
}

// NewDownloadState starts a fresh record in StageInitializing, owned by the
// current process.
func NewDownloadState(workspacePath, url string) *DownloadState {
	return &DownloadState{
		Stage:         StageInitializing,
		URL:           url,
		WorkspacePath: workspacePath,
		Owner:         CurrentOwner(),
	}
}

// Advance pushes a checkpoint of the current stage and moves to next.
func (d *DownloadState) Advance(next Stage, now time.Time) {
	d.CheckpointStack = append(d.CheckpointStack, Checkpoint{
		Stage:              d.Stage,
		BytesDone:          d.BytesDone,
		SequencesProcessed: d.SequencesProcessed,
		FileOffset:         d.FileOffset,
		RecordedAt:         now,
	})
	d.Stage = next
}

// Fail transitions to StageFailed, recording msg/recoverable without
// discarding the checkpoint stack (failures are resumable).
func (d *DownloadState) Fail(msg string, recoverable bool, now time.Time) {
	d.Stage = StageFailed
	d.FailureMessage = msg
	d.FailureRecoverable = recoverable
	d.FailedAt = now
}

// RestoreLastCheckpoint pops the most recent checkpoint and reverts to it.
func (d *DownloadState) RestoreLastCheckpoint() error {
	if len(d.CheckpointStack) == 0 {
		return errors.New("procstate: no checkpoint to restore")
	}
	last := d.CheckpointStack[len(d.CheckpointStack)-1]
	d.CheckpointStack = d.CheckpointStack[:len(d.CheckpointStack)-1]
	d.Stage = last.Stage
	d.BytesDone = last.BytesDone
	d.SequencesProcessed = last.SequencesProcessed
	d.FileOffset = last.FileOffset
	return nil
}

// ShouldCheckpoint reports whether enough progress has accumulated since
// the last checkpoint to warrant writing a new one, per policy.
func (d *DownloadState) ShouldCheckpoint(policy CheckpointPolicy) bool {
	seqDelta := d.SequencesProcessed - d.lastCheckpointSeq
	byteDelta := d.BytesDone - d.lastCheckpointBytes
	return (policy.SequenceInterval > 0 && seqDelta >= policy.SequenceInterval) ||
		(policy.ByteInterval > 0 && byteDelta >= policy.ByteInterval)
}

// NoteCheckpointed resets the interval counters after a checkpoint write.
func (d *DownloadState) NoteCheckpointed() {
	d.lastCheckpointSeq = d.SequencesProcessed
	d.lastCheckpointBytes = d.BytesDone
}

// EligibleForTakeover mirrors ProcessingState's rule: dead owner, same host.
func (d *DownloadState) EligibleForTakeover() bool {
	return d.Owner.SameHost() && d.Owner.IsDead()
}

// Save persists d to path via atomic write.
func (d *DownloadState) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "procstate: marshal download state")
	}
	return writeAtomic(path, data)
}

// LoadDownloadState reads a DownloadState and, if it is mid-download and a
// partial file on disk is larger than the recorded bytes_done, advances
// bytes_done to the actual file size — avoiding re-downloading bytes a
// previous crash had already written but not yet checkpointed.
func LoadDownloadState(path string) (*DownloadState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "procstate: read download state")
	}
	var d DownloadState
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "procstate: unmarshal download state")
	}
	if d.Stage == StageDownloading && d.PartialPath != "" {
		if fi, statErr := os.Stat(d.PartialPath); statErr == nil && fi.Size() > d.BytesDone {
			d.BytesDone = fi.Size()
		}
	}
	d.lastCheckpointSeq = d.SequencesProcessed
	d.lastCheckpointBytes = d.BytesDone
	return &d, nil
}
