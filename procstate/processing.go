package procstate

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/talaria-db/sequoia/hashid"
)

// ProcessingState tracks one reduction/ingestion operation's chunk-level
// progress for crash resumption.
type ProcessingState struct {
	OperationID           string                 `json:"operation_id"`
	OperationType         string                 `json:"operation_type"`
	ParentManifestHash    hashid.Hash32          `json:"parent_manifest_hash"`
	ParentManifestVersion string                 `json:"parent_manifest_version"`
	TotalChunks           int                    `json:"total_chunks"`
	CompletedChunks       map[hashid.Hash32]bool `json:"completed_chunks"`
	StartedAt             time.Time              `json:"started_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
	Owner                 Owner                  `json:"owner"`
}

// NewProcessingState starts a fresh state record owned by the current process.
func NewProcessingState(operationID, operationType string, parentHash hashid.Hash32, parentVersion string, totalChunks int, now time.Time) *ProcessingState {
	return &ProcessingState{
		OperationID:           operationID,
		OperationType:         operationType,
		ParentManifestHash:    parentHash,
		ParentManifestVersion: parentVersion,
		TotalChunks:           totalChunks,
		CompletedChunks:       map[hashid.Hash32]bool{},
		StartedAt:             now,
		UpdatedAt:             now,
		Owner:                 CurrentOwner(),
	}
}

// MarkChunkComplete records chunk as done and bumps UpdatedAt.
func (s *ProcessingState) MarkChunkComplete(chunk hashid.Hash32, now time.Time) {
	if s.CompletedChunks == nil {
		s.CompletedChunks = map[hashid.Hash32]bool{}
	}
	s.CompletedChunks[chunk] = true
	s.UpdatedAt = now
}

// IsComplete reports whether every expected chunk has been marked done.
func (s *ProcessingState) IsComplete() bool {
	return len(s.CompletedChunks) >= s.TotalChunks
}

// EligibleForTakeover reports whether a different process may adopt this
// state: its owner's PID must be dead, and the owner must be on this host
// (cross-host liveness cannot be checked, so cross-host states are never
// eligible here — only the workspace lock's >24h rule covers that case).
func (s *ProcessingState) EligibleForTakeover() bool {
	return s.Owner.SameHost() && s.Owner.IsDead()
}

// Save persists s to path via atomic write.
func (s *ProcessingState) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "procstate: marshal processing state")
	}
	return writeAtomic(path, data)
}

// LoadProcessingState reads a ProcessingState previously written by Save.
func LoadProcessingState(path string) (*ProcessingState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "procstate: read processing state")
	}
	var s ProcessingState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "procstate: unmarshal processing state")
	}
	return &s, nil
}

// DeleteState removes a state file, used on successful completion (spec's
// "deleted on success, retained on failure for resumption").
func DeleteState(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "procstate: delete state file")
	}
	return nil
}
