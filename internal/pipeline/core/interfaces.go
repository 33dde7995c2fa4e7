// Package core provides the pipeline orchestration framework.
package core

import (
	"context"
	"time"

	"github.com/chanarr/chanarr/internal/models"
)

// Stage is one step of proxy assembly. Stages read and mutate the shared
// State and report artifacts through their StageResult.
type Stage interface {
	// ID returns the stage's unique identifier (e.g., "load_channels").
	ID() string

	// Name returns the stage's display name (e.g., "Load Channels").
	Name() string

	// Execute runs the stage against the shared state.
	Execute(ctx context.Context, state *State) (*StageResult, error)

	// Cleanup runs after execution, on success and on failure alike.
	Cleanup(ctx context.Context) error
}

// ProgressReporter receives progress updates from running stages.
type ProgressReporter interface {
	// ReportProgress reports fractional stage progress (0.0 to 1.0).
	ReportProgress(ctx context.Context, stageID string, progress float64, message string)

	// ReportItemProgress reports per-item progress within a stage.
	ReportItemProgress(ctx context.Context, stageID string, current, total int, item string)
}

// State is the data shared between pipeline stages.
type State struct {
	// ProxyID identifies the proxy being assembled.
	ProxyID models.ULID

	// Proxy is the full proxy configuration.
	Proxy *models.Proxy

	// Sources, EpgSources, Filters, and MappingRules are the proxy's
	// attachments in ascending priority_order (lower order wins during
	// dedup).
	Sources      []*models.ProxySource
	EpgSources   []*models.ProxyEpgSource
	Filters      []*models.ProxyFilter
	MappingRules []*models.ProxyMappingRule

	// ProgressReporter receives stage progress updates.
	ProgressReporter ProgressReporter

	// TempDir holds intermediate files; OutputDir receives published ones.
	TempDir   string
	OutputDir string

	// Channels is the merged channel lineup under construction.
	Channels []*models.Channel

	// EpgChannels carries guide channel metadata matched to the lineup,
	// and Programs the guide programmes for the included channels.
	EpgChannels []*models.EpgChannel
	Programs    []*models.EpgProgram

	// ChannelMap indexes the winning channel by TvgID for EPG matching;
	// EpgChannelMap indexes the winning guide channel by XMLTV channel id.
	ChannelMap    map[string]*models.Channel
	EpgChannelMap map[string]*models.EpgChannel

	// ChannelCount and ProgramCount track the output totals.
	ChannelCount int
	ProgramCount int

	// StartTime marks the beginning of pipeline execution, and Errors
	// accumulates the non-fatal failures seen since.
	StartTime time.Time
	Errors    []error

	// Artifacts holds each stage's output artifacts, keyed by stage ID.
	Artifacts map[string][]Artifact

	// Metadata carries arbitrary stage-specific values.
	Metadata map[string]any
}

// NewState creates a pipeline state for the given proxy. Attachment slices
// are seeded from the proxy's preloaded relations, which arrive sorted by
// priority_order.
func NewState(proxy *models.Proxy) *State {
	s := &State{
		ProxyID: proxy.ID, Proxy: proxy, StartTime: time.Now(),
		Channels:      make([]*models.Channel, 0),
		EpgChannels:   make([]*models.EpgChannel, 0),
		Programs:      make([]*models.EpgProgram, 0),
		ChannelMap:    make(map[string]*models.Channel),
		EpgChannelMap: make(map[string]*models.EpgChannel),
		Errors:        make([]error, 0),
		Artifacts:     make(map[string][]Artifact),
		Metadata:      make(map[string]any),
	}
	for i := range proxy.Sources {
		s.Sources = append(s.Sources, &proxy.Sources[i])
	}
	for i := range proxy.EpgSources {
		s.EpgSources = append(s.EpgSources, &proxy.EpgSources[i])
	}
	for i := range proxy.Filters {
		s.Filters = append(s.Filters, &proxy.Filters[i])
	}
	for i := range proxy.MappingRules {
		s.MappingRules = append(s.MappingRules, &proxy.MappingRules[i])
	}
	return s
}

// AddError records a non-fatal error.
func (s *State) AddError(err error) {
	if err == nil {
		return
	}
	s.Errors = append(s.Errors, err)
}

// HasErrors reports whether any non-fatal errors were recorded.
func (s *State) HasErrors() bool { return len(s.Errors) > 0 }

// Duration returns the elapsed time since pipeline start.
func (s *State) Duration() time.Duration { return time.Since(s.StartTime) }

// SetMetadata stores a stage-specific value.
func (s *State) SetMetadata(key string, value any) { s.Metadata[key] = value }

// GetMetadata looks up a stage-specific value.
func (s *State) GetMetadata(key string) (any, bool) {
	v, ok := s.Metadata[key]
	return v, ok
}

// AddArtifact records an artifact produced by a stage.
func (s *State) AddArtifact(stageID string, artifact Artifact) {
	s.Artifacts[stageID] = append(s.Artifacts[stageID], artifact)
}

// GetArtifacts returns the artifacts a stage produced.
func (s *State) GetArtifacts(stageID string) []Artifact { return s.Artifacts[stageID] }

// GetArtifactsByType returns every artifact of one type, across stages.
func (s *State) GetArtifactsByType(artifactType ArtifactType) []Artifact {
	var out []Artifact
	for _, artifacts := range s.Artifacts {
		for _, a := range artifacts {
			if a.Type != artifactType {
				continue
			}
			out = append(out, a)
		}
	}
	return out
}

// RebuildChannelMap reindexes ChannelMap from the current channel slice.
// Stages that remove or mutate channels call this to keep EPG matching
// consistent. First occurrence of a TvgID wins, preserving merge priority.
func (s *State) RebuildChannelMap() {
	m := make(map[string]*models.Channel, len(s.Channels))
	for _, ch := range s.Channels {
		if ch.TvgID == "" {
			continue
		}
		if _, exists := m[ch.TvgID]; !exists {
			m[ch.TvgID] = ch
		}
	}
	s.ChannelMap = m
}

// RebuildEpgChannelMap reindexes EpgChannelMap from the current guide
// channel slice.
func (s *State) RebuildEpgChannelMap() {
	m := make(map[string]*models.EpgChannel, len(s.EpgChannels))
	for _, ch := range s.EpgChannels {
		if _, exists := m[ch.ChannelID]; !exists {
			m[ch.ChannelID] = ch
		}
	}
	s.EpgChannelMap = m
}

// StageResult is the outcome of one stage execution.
type StageResult struct {
	Artifacts        []Artifact    // outputs produced by the stage
	RecordsProcessed int           // items examined
	RecordsModified  int           // items changed
	Duration         time.Duration // stage execution time
	Message          string        // optional summary
}

// Result is the outcome of a full pipeline execution.
type Result struct {
	Success      bool // true when no fatal error occurred
	ChannelCount int  // channels in the generated output
	ProgramCount int  // guide programmes in the generated output

	Duration     time.Duration
	StageResults map[string]*StageResult
	Errors       []error

	// M3UPath and XMLTVPath locate the generated output files.
	M3UPath   string
	XMLTVPath string
}
