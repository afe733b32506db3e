package earthengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobrunner/sceneport/internal/domain"
)

// Operation states reported by the API.
const (
	statePending    = "PENDING"
	stateRunning    = "RUNNING"
	stateCancelling = "CANCELLING"
	stateSucceeded  = "SUCCEEDED"
	stateCancelled  = "CANCELLED"
	stateFailed     = "FAILED"
)

type operation struct {
	Name     string `json:"name"`
	Done     bool   `json:"done"`
	Metadata struct {
		State       string `json:"state"`
		Description string `json:"description"`
	} `json:"metadata"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Jobs implements output.JobService with image:export operations.
type Jobs struct {
	client *Client
}

// NewJobs creates a new job service.
func NewJobs(client *Client) *Jobs {
	return &Jobs{client: client}
}

// Submit starts an image export to a Drive folder and returns the
// operation name as the handle.
func (j *Jobs) Submit(ctx context.Context, job domain.ExportJob) (domain.JobHandle, error) {
	req, err := exportRequest(job)
	if err != nil {
		return "", err
	}

	var op operation
	if err := j.client.do(ctx, "POST", j.client.projectPath()+"/image:export", nil, req, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("export of %s returned no operation name: %w", job.Name, domain.ErrInternal)
	}
	return domain.JobHandle(op.Name), nil
}

// Status returns the state of an export operation.
func (j *Jobs) Status(ctx context.Context, handle domain.JobHandle) (domain.JobState, error) {
	var op operation
	if err := j.client.do(ctx, "GET", string(handle), nil, nil, &op); err != nil {
		return "", err
	}
	return mapState(op), nil
}

// mapState translates an operation to a job state. Anything unrecognized
// is UNKNOWN, which the admission controller treats as terminal.
func mapState(op operation) domain.JobState {
	if op.Done && op.Error != nil {
		return domain.JobStateFailed
	}
	switch strings.ToUpper(op.Metadata.State) {
	case statePending:
		return domain.JobStateReady
	case stateRunning:
		return domain.JobStateRunning
	case stateSucceeded:
		return domain.JobStateCompleted
	case stateFailed:
		return domain.JobStateFailed
	case stateCancelling, stateCancelled:
		return domain.JobStateCancelled
	case "":
		if op.Done {
			return domain.JobStateCompleted
		}
		return domain.JobStateReady
	default:
		return domain.JobStateUnknown
	}
}

type exportImageRequest struct {
	Expression        expression        `json:"expression"`
	Description       string            `json:"description"`
	Grid              pixelGrid         `json:"grid"`
	FileExportOptions fileExportOptions `json:"fileExportOptions"`
}

type pixelGrid struct {
	Dimensions      gridDimensions  `json:"dimensions"`
	AffineTransform affineTransform `json:"affineTransform"`
	CrsCode         string          `json:"crsCode"`
}

type gridDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type affineTransform struct {
	ScaleX     float64 `json:"scaleX"`
	ShearX     float64 `json:"shearX"`
	TranslateX float64 `json:"translateX"`
	ShearY     float64 `json:"shearY"`
	ScaleY     float64 `json:"scaleY"`
	TranslateY float64 `json:"translateY"`
}

type fileExportOptions struct {
	FileFormat       string           `json:"fileFormat"`
	DriveDestination driveDestination `json:"driveDestination"`
}

type driveDestination struct {
	Folder         string `json:"folder"`
	FilenamePrefix string `json:"filenamePrefix"`
}

// exportRequest renders a job as an image:export body. The pixel grid is the
// projected square of the region in the job CRS, north up.
func exportRequest(job domain.ExportJob) (exportImageRequest, error) {
	ext := job.Region.Projected
	if !ext.IsValid() || ext.Width() == 0 || ext.Height() == 0 {
		return exportImageRequest{}, fmt.Errorf("job %s has no projected extent: %w", job.Name, domain.ErrInvalidInput)
	}
	if ext.SRID != job.CRS.SRID() {
		return exportImageRequest{}, fmt.Errorf("job %s extent is EPSG:%d, crs is %s: %w",
			job.Name, ext.SRID, job.CRS, domain.ErrInvalidSRID)
	}
	if job.Dimensions.Width <= 0 || job.Dimensions.Height <= 0 {
		return exportImageRequest{}, fmt.Errorf("job %s dimensions %s: %w", job.Name, job.Dimensions, domain.ErrInvalidInput)
	}

	return exportImageRequest{
		Expression:  selectBands(job.Raster),
		Description: job.Name,
		Grid: pixelGrid{
			Dimensions: gridDimensions{Width: job.Dimensions.Width, Height: job.Dimensions.Height},
			AffineTransform: affineTransform{
				ScaleX:     ext.Width() / float64(job.Dimensions.Width),
				TranslateX: ext.MinX,
				ScaleY:     -ext.Height() / float64(job.Dimensions.Height),
				TranslateY: ext.MaxY,
			},
			CrsCode: job.CRS.String(),
		},
		FileExportOptions: fileExportOptions{
			FileFormat: "GEO_TIFF",
			DriveDestination: driveDestination{
				Folder:         job.Folder,
				FilenamePrefix: job.Name,
			},
		},
	}, nil
}

// expression is a serialized computation graph.
type expression struct {
	Result string           `json:"result"`
	Values map[string]value `json:"values"`
}

type value struct {
	ConstantValue           interface{}         `json:"constantValue,omitempty"`
	FunctionInvocationValue *functionInvocation `json:"functionInvocationValue,omitempty"`
}

type functionInvocation struct {
	FunctionName string           `json:"functionName"`
	Arguments    map[string]value `json:"arguments"`
}

// selectBands builds Image.select(Image.load(id), bands).
func selectBands(raster domain.RasterRef) expression {
	load := value{FunctionInvocationValue: &functionInvocation{
		FunctionName: "Image.load",
		Arguments: map[string]value{
			"id": {ConstantValue: assetID(string(raster.Scene))},
		},
	}}

	return expression{
		Result: "0",
		Values: map[string]value{
			"0": {FunctionInvocationValue: &functionInvocation{
				FunctionName: "Image.select",
				Arguments: map[string]value{
					"input":         load,
					"bandSelectors": {ConstantValue: raster.Bands},
				},
			}},
		},
	}
}

// assetID strips the public catalog prefix from an asset name.
func assetID(name string) string {
	return strings.TrimPrefix(name, publicAssets)
}
