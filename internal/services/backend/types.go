package backend

import (
	"encoding/json"

	"vigil/internal/runconfig"
)

// UploadResult is the backend's answer to a video upload.
type UploadResult struct {
	VideoPath     string `json:"video_path"`
	VideoFilename string `json:"video_filename"`
}

// DetectionRequest starts object detection. Settings are sent flattened next
// to the video path and analysis name.
type DetectionRequest struct {
	VideoPath      string
	NameOfAnalysis string
	Settings       runconfig.Settings
}

func (r DetectionRequest) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, len(r.Settings)+2)
	for key, value := range r.Settings {
		body[key] = value
	}
	body["video_path"] = r.VideoPath
	body["name_of_analysis"] = r.NameOfAnalysis
	return json.Marshal(body)
}

// DetectionResult carries the id the backend assigned to the analysed video.
type DetectionResult struct {
	VideoID int64  `json:"video_id"`
	Message string `json:"message,omitempty"`
}

// ConfigurationInput is a configuration to persist on the backend.
type ConfigurationInput struct {
	Name       string             `json:"name"`
	Categories []string           `json:"categories"`
	Settings   runconfig.Settings `json:"settings"`
}

// StoredConfiguration is a configuration persisted on the backend.
type StoredConfiguration struct {
	ID         int64              `json:"id"`
	Name       string             `json:"name"`
	Categories []string           `json:"categories"`
	Settings   runconfig.Settings `json:"settings"`
	CreatedAt  string             `json:"created_at,omitempty"`
}

// RunConfiguration converts the stored record into a run configuration.
func (c StoredConfiguration) RunConfiguration() runconfig.RunConfiguration {
	return runconfig.RunConfiguration{Categories: c.Categories, Settings: c.Settings}
}

type configIDResponse struct {
	ConfigID int64 `json:"config_id"`
}

type linkRequest struct {
	VideoID  int64 `json:"video_id"`
	ConfigID int64 `json:"config_id"`
}

// PreprocessRequest prepares detection crops for recognition.
type PreprocessRequest struct {
	VideoPath      string `json:"video_path"`
	VideoID        int64  `json:"video_id"`
	OutputPath     string `json:"output_path"`
	ProcessingMode string `json:"processing_mode"`
}

// RecognitionRequest scores preprocessed segments against categories.
type RecognitionRequest struct {
	VideoID         int64    `json:"video_id"`
	Categories      []string `json:"categories"`
	BatchSize       int64    `json:"batch_size"`
	FrameSampleRate int64    `json:"frame_sample_rate"`
	ProcessingMode  string   `json:"processing_mode"`
}

// InterpreterRequest turns recognition scores into labelled anomalies.
type InterpreterRequest struct {
	VideoID    int64    `json:"video_id"`
	Threshold  float64  `json:"threshold"`
	Categories []string `json:"categories"`
}

type visualizationRequest struct {
	VideoID int64 `json:"video_id"`
}

// VideoMetadata describes an analysed video.
type VideoMetadata struct {
	ID             int64   `json:"id"`
	VideoPath      string  `json:"video_path"`
	Duration       float64 `json:"duration"`
	FPS            float64 `json:"fps"`
	DateProcessed  string  `json:"date_processed"`
	NameOfAnalysis string  `json:"name_of_analysis"`
}

// Anomaly is one labelled score attached to a detection.
type Anomaly struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Detection is one tracked object together with its anomaly scores.
type Detection struct {
	ID                       int64     `json:"id"`
	VideoID                  int64     `json:"video_id"`
	StartFrame               int64     `json:"start_frame"`
	EndFrame                 int64     `json:"end_frame"`
	ClassID                  int64     `json:"class_id"`
	Confidence               float64   `json:"confidence"`
	TrackID                  int64     `json:"track_id"`
	VideoObjectDetectionPath string    `json:"video_object_detection_path"`
	Anomalies                []Anomaly `json:"anomalies"`
}

// TopAnomaly returns the highest scoring anomaly, if any.
func (d Detection) TopAnomaly() (Anomaly, bool) {
	if len(d.Anomalies) == 0 {
		return Anomaly{}, false
	}
	best := d.Anomalies[0]
	for _, anomaly := range d.Anomalies[1:] {
		if anomaly.Score > best.Score {
			best = anomaly
		}
	}
	return best, true
}

// AnalysisResult is a previously analysed video with its linked
// configuration, if one was stored.
type AnalysisResult struct {
	ID             int64                `json:"id"`
	VideoPath      string               `json:"video_path"`
	Duration       float64              `json:"duration"`
	FPS            float64              `json:"fps"`
	DateProcessed  string               `json:"date_processed"`
	NameOfAnalysis string               `json:"name_of_analysis"`
	Config         *StoredConfiguration `json:"config,omitempty"`
}

// ServerInfo is returned by the backend root endpoint.
type ServerInfo struct {
	Message string `json:"message"`
}
