package progress

import (
	"github.com/chanarr/chanarr/internal/models"
	"github.com/chanarr/chanarr/internal/pipeline/core"
)

var _ core.ProgressReporter = (*OperationManager)(nil)

// CreateStagesFromPipeline builds StageInfo entries mirroring the pipeline's
// stages, with equal weights summing to 1.
func CreateStagesFromPipeline(stages []core.Stage) []StageInfo {
	if len(stages) == 0 {
		return nil
	}
	weight := 1.0 / float64(len(stages))
	infos := make([]StageInfo, len(stages))
	for i, stage := range stages {
		infos[i] = StageInfo{ID: stage.ID(), Name: stage.Name(), Weight: weight}
	}
	return infos
}

// StartPipelineOperation starts a progress operation for a pipeline run and
// returns its OperationManager, which the pipeline uses as its
// core.ProgressReporter. The operation type is derived from the owner type.
func StartPipelineOperation(svc *Service, ownerType string, ownerID models.ULID, ownerName string, stages []core.Stage) (*OperationManager, error) {
	opType := operationTypeForOwner(ownerType)

	mgr, err := svc.StartOperation(opType, ownerID, ownerType, CreateStagesFromPipeline(stages))
	if err != nil {
		return nil, err
	}
	if ownerName != "" {
		mgr.SetMetadata("owner_name", ownerName)
	}
	return mgr, nil
}

func operationTypeForOwner(ownerType string) OperationType {
	switch ownerType {
	case "proxy":
		return OpProxyRegeneration
	case "stream_source":
		return OpStreamIngestion
	case "epg_source":
		return OpEpgIngestion
	}
	return OpPipeline
}
