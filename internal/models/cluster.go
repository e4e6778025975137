package models

// NoiseLabel marks points that do not belong to any dense region.
const NoiseLabel = -1

// Fixed folder names for documents outside the generated taxonomy.
const (
	FolderUnclustered = "Unclustered"
	FolderUnprocessed = "Unprocessed"
)

type Cluster struct {
	LabelID  int
	Members  []string
	Centroid [Dims]float64
}

// IsNoise reports whether c is the outlier partition.
func (c Cluster) IsNoise() bool {
	return c.LabelID == NoiseLabel
}

type ClusterLabel struct {
	LabelID int
	Name    string
	// Fallback is set when the name was synthesized after labeling failed.
	Fallback bool
}

type FileMetadata struct {
	FileSizeKB float64 `json:"file_size_kb"`
	FileType   string  `json:"file_type"`
	PageCount  *int    `json:"page_count,omitempty"`
	Language   *string `json:"language,omitempty"`
}

// AnalysisResult is the per-document record handed back to clients.
type AnalysisResult struct {
	Filename string       `json:"filename"`
	Folder   string       `json:"folder"`
	X        float64      `json:"x"`
	Y        float64      `json:"y"`
	Metadata FileMetadata `json:"metadata"`
}

type LargestFile struct {
	Filename string  `json:"filename"`
	SizeKB   float64 `json:"size_kb"`
}

type BatchSummary struct {
	TotalFiles     int         `json:"total_files"`
	TotalSizeKB    float64     `json:"total_size_kb"`
	AverageSizeKB  float64     `json:"average_size_kb"`
	LargestFile    LargestFile `json:"largest_file"`
	ProcessingTime float64     `json:"processing_time_seconds"`
	ClusterCount   int         `json:"cluster_count"`
	Unclustered    int         `json:"unclustered"`
	Unprocessed    int         `json:"unprocessed"`
	Description    string      `json:"description"`
}
