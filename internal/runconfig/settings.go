package runconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Setting keys understood by the pipeline.
const (
	KeyModelPath           = "model_path"
	KeyBatchSize           = "batch_size"
	KeyFrameSampleRate     = "frame_sample_rate"
	KeyNumSegments         = "num_segments"
	KeyProcessingMode      = "processing_mode"
	KeyClassesToDetect     = "classes_to_detect"
	KeySkipFrames          = "skip_frames"
	KeyNumOfSkipFrames     = "num_of_skip_frames"
	KeyThreshold           = "threshold"
	KeyConfidenceThreshold = "confidence_threshold"
	KeyTopK                = "top_k"
)

// Settings maps setting names to values as they will be sent to the backend.
type Settings map[string]any

// DefaultSettings returns the settings a fresh installation starts with.
func DefaultSettings() Settings {
	return Settings{
		KeyModelPath:           "data/models/yolo11n.pt",
		KeyBatchSize:           32,
		KeyFrameSampleRate:     4,
		KeyNumSegments:         8,
		KeyProcessingMode:      "parallel",
		KeyClassesToDetect:     []any{0},
		KeySkipFrames:          true,
		KeyNumOfSkipFrames:     5,
		KeyThreshold:           22,
		KeyConfidenceThreshold: 0.6,
		KeyTopK:                1,
	}
}

var defaults = DefaultSettings()

// Keys returns the setting names in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	out := make(Settings, len(s))
	for key, value := range s {
		out[key] = cloneValue(value)
	}
	return out
}

// String returns the value of key when it holds a string.
func (s Settings) String(key string) (string, bool) {
	value, ok := s[key].(string)
	return value, ok
}

// Int returns the value of key when it holds a whole number.
func (s Settings) Int(key string) (int64, bool) {
	return toInt(s[key])
}

// Float returns the value of key when it holds any number.
func (s Settings) Float(key string) (float64, bool) {
	return toFloat(s[key])
}

// Bool returns the value of key when it holds a boolean.
func (s Settings) Bool(key string) (bool, bool) {
	value, ok := s[key].(bool)
	return value, ok
}

// IntList returns the value of key when it holds a list of whole numbers.
func (s Settings) IntList(key string) ([]int64, bool) {
	return toIntList(s[key])
}

func (s Settings) ModelPath() string {
	if value, ok := s.String(KeyModelPath); ok {
		return value
	}
	value, _ := defaults.String(KeyModelPath)
	return value
}

func (s Settings) BatchSize() int64       { return s.intOrDefault(KeyBatchSize) }
func (s Settings) FrameSampleRate() int64 { return s.intOrDefault(KeyFrameSampleRate) }
func (s Settings) NumSegments() int64     { return s.intOrDefault(KeyNumSegments) }
func (s Settings) NumOfSkipFrames() int64 { return s.intOrDefault(KeyNumOfSkipFrames) }
func (s Settings) TopK() int64            { return s.intOrDefault(KeyTopK) }

func (s Settings) ProcessingMode() string {
	if value, ok := s.String(KeyProcessingMode); ok && strings.TrimSpace(value) != "" {
		return value
	}
	value, _ := defaults.String(KeyProcessingMode)
	return value
}

func (s Settings) ClassesToDetect() []int64 {
	if value, ok := s.IntList(KeyClassesToDetect); ok {
		return value
	}
	value, _ := defaults.IntList(KeyClassesToDetect)
	return value
}

func (s Settings) SkipFrames() bool {
	if value, ok := s.Bool(KeySkipFrames); ok {
		return value
	}
	value, _ := defaults.Bool(KeySkipFrames)
	return value
}

// Threshold is the interpreter cutoff. It is kept as a float so fractional
// values entered by users pass through unchanged.
func (s Settings) Threshold() float64 { return s.floatOrDefault(KeyThreshold) }

func (s Settings) ConfidenceThreshold() float64 { return s.floatOrDefault(KeyConfidenceThreshold) }

func (s Settings) intOrDefault(key string) int64 {
	if value, ok := s.Int(key); ok {
		return value
	}
	value, _ := defaults.Int(key)
	return value
}

func (s Settings) floatOrDefault(key string) float64 {
	if value, ok := s.Float(key); ok {
		return value
	}
	value, _ := defaults.Float(key)
	return value
}

// Validate checks that every known key present in s has a usable value.
func (s Settings) Validate() error {
	for _, key := range []string{KeyBatchSize, KeyFrameSampleRate, KeyNumSegments, KeyTopK} {
		if _, present := s[key]; !present {
			continue
		}
		value, ok := s.Int(key)
		if !ok || value <= 0 {
			return fmt.Errorf("setting %s must be a positive integer, got %v", key, s[key])
		}
	}
	if _, present := s[KeyNumOfSkipFrames]; present {
		if value, ok := s.Int(KeyNumOfSkipFrames); !ok || value < 0 {
			return fmt.Errorf("setting %s must be a non-negative integer, got %v", KeyNumOfSkipFrames, s[KeyNumOfSkipFrames])
		}
	}
	for _, key := range []string{KeyThreshold, KeyConfidenceThreshold} {
		if _, present := s[key]; !present {
			continue
		}
		if _, ok := s.Float(key); !ok {
			return fmt.Errorf("setting %s must be a number, got %v", key, s[key])
		}
	}
	if value, present := s[KeyConfidenceThreshold]; present {
		if f, _ := toFloat(value); f < 0 || f > 1 {
			return fmt.Errorf("setting %s must be between 0 and 1, got %v", KeyConfidenceThreshold, value)
		}
	}
	for _, key := range []string{KeyModelPath, KeyProcessingMode} {
		if _, present := s[key]; !present {
			continue
		}
		if value, ok := s.String(key); !ok || strings.TrimSpace(value) == "" {
			return fmt.Errorf("setting %s must be a non-empty string, got %v", key, s[key])
		}
	}
	if _, present := s[KeySkipFrames]; present {
		if _, ok := s.Bool(KeySkipFrames); !ok {
			return fmt.Errorf("setting %s must be true or false, got %v", KeySkipFrames, s[KeySkipFrames])
		}
	}
	if _, present := s[KeyClassesToDetect]; present {
		if _, ok := s.IntList(KeyClassesToDetect); !ok {
			return fmt.Errorf("setting %s must be a list of class ids, got %v", KeyClassesToDetect, s[KeyClassesToDetect])
		}
	}
	return nil
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		if n, ok := toInt(value); ok {
			return float64(n), true
		}
		return 0, false
	}
}

func toIntList(value any) ([]int64, bool) {
	switch v := value.(type) {
	case []int64:
		return append([]int64(nil), v...), true
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, true
	case []any:
		out := make([]int64, 0, len(v))
		for _, item := range v {
			n, ok := toInt(item)
			if !ok {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	case Settings:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []int:
		return append([]int(nil), v...)
	case []int64:
		return append([]int64(nil), v...)
	case []float64:
		return append([]float64(nil), v...)
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
