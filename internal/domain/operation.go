package domain

import "encoding/json"

// DataOperation is the step-carried message describing the transformation a
// worker should apply. It is stored serialized on each workflow step and
// passed to workers with their work items. Only AccessToken is ever rewritten
// after creation (on resume/skip-preview, to refresh credentials).
type DataOperation struct {
	RequestID        string                `json:"requestId"`
	User             string                `json:"user"`
	ClientID         string                `json:"client,omitempty"`
	AccessToken      string                `json:"accessToken,omitempty"`
	StagingLocation  string                `json:"stagingLocation,omitempty"`
	Sources          []DataSource          `json:"sources"`
	Format           *OutputFormat         `json:"format,omitempty"`
	Subset           *Subset               `json:"subset,omitempty"`
	TemporalRange    *TemporalRange        `json:"temporal,omitempty"`
	AveragingMethod  string                `json:"average,omitempty"`
	ExtendDimensions []string              `json:"extendDimensions,omitempty"`
	IsSynchronous    bool                  `json:"isSynchronous,omitempty"`
	ForceAsync       bool                  `json:"forceAsync,omitempty"`
	Concatenate      bool                  `json:"concatenate,omitempty"`
	SkipPreview      bool                  `json:"skipPreview,omitempty"`
	IgnoreErrors     bool                  `json:"ignoreErrors,omitempty"`
	PixelSubset      bool                  `json:"pixelSubset,omitempty"`
}

type DataSource struct {
	CollectionID string    `json:"collection"`
	ShortName    string    `json:"shortName,omitempty"`
	VersionID    string    `json:"versionId,omitempty"`
	Granules     []Granule `json:"granules,omitempty"`
}

type Granule struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type OutputFormat struct {
	MIME        string     `json:"mime,omitempty"`
	CRS         string     `json:"crs,omitempty"`
	ScaleExtent *Extent    `json:"scaleExtent,omitempty"`
	ScaleSize   *ScaleSize `json:"scaleSize,omitempty"`
	Width       *int       `json:"width,omitempty"`
	Height      *int       `json:"height,omitempty"`
}

type Extent struct {
	X Range `json:"x"`
	Y Range `json:"y"`
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type ScaleSize struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Subset struct {
	BBox  []float64 `json:"bbox,omitempty"`
	Shape string    `json:"shape,omitempty"`
}

type TemporalRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

func (op *DataOperation) Marshal() ([]byte, error) { return json.Marshal(op) }

func UnmarshalOperation(raw []byte) (*DataOperation, error) {
	var op DataOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, err
	}
	return &op, nil
}
