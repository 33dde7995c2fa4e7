package core

import (
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// ArtifactType identifies what kind of content an artifact holds.
type ArtifactType string

const (
	ArtifactTypeChannels    ArtifactType = "channels"     // channel lineup data
	ArtifactTypeEpgChannels ArtifactType = "epg_channels" // guide channel metadata
	ArtifactTypePrograms    ArtifactType = "programs"     // EPG programme data
	ArtifactTypeM3U         ArtifactType = "m3u"          // generated M3U file
	ArtifactTypeXMLTV       ArtifactType = "xmltv"        // generated XMLTV file
)

// ProcessingStage marks how far along the pipeline an artifact is.
type ProcessingStage string

const (
	ProcessingStageRaw         ProcessingStage = "raw"
	ProcessingStageMerged      ProcessingStage = "merged"      // after priority merge and dedup
	ProcessingStageFiltered    ProcessingStage = "filtered"    // after filtering
	ProcessingStageTransformed ProcessingStage = "transformed" // after data mapping
	ProcessingStageNumbered    ProcessingStage = "numbered"    // after channel numbering
	ProcessingStageGenerated   ProcessingStage = "generated"   // output files written
	ProcessingStagePublished   ProcessingStage = "published"   // moved to final location
)

// Artifact is an output produced by a pipeline stage.
type Artifact struct {
	ID          models.ULID
	Type        ArtifactType
	Stage       ProcessingStage
	FilePath    string // set for file-based artifacts
	CreatedBy   string // stage ID that produced it
	RecordCount int
	FileSize    int64 // bytes, for file-based artifacts
	CreatedAt   time.Time
	Metadata    map[string]any
}

// NewArtifact starts a fresh artifact for the given type and stage.
// The With* methods fill in the optional fields fluently.
func NewArtifact(artifactType ArtifactType, stage ProcessingStage, createdBy string) Artifact {
	return Artifact{
		ID:   models.NewULID(),
		Type: artifactType,

		Stage: stage, CreatedBy: createdBy, CreatedAt: time.Now(),

		Metadata: make(map[string]any),
	}
}

func (a Artifact) WithFilePath(path string) Artifact {
	a.FilePath = path
	return a
}

func (a Artifact) WithRecordCount(count int) Artifact {
	a.RecordCount = count
	return a
}

func (a Artifact) WithFileSize(size int64) Artifact {
	a.FileSize = size
	return a
}

func (a Artifact) WithMetadata(key string, value any) Artifact {
	a.Metadata[key] = value
	return a
}
