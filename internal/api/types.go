package api

import "time"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// LoadRequest asks the server to load a model. Model is a hub id unless
// Local is set, in which case it is a directory.
type LoadRequest struct {
	Model string `json:"model"`
	Local bool   `json:"local,omitempty"`
}

type ModelSummary struct {
	ID         string    `json:"id"`
	Model      string    `json:"model"`
	ModelType  string    `json:"model_type"`
	Directory  string    `json:"directory"`
	Layers     int       `json:"layers"`
	Quantized  int       `json:"quantized"`
	Strategy   string    `json:"strategy"`
	Parameters int64     `json:"parameters"`
	VocabSize  int       `json:"vocab_size"`
	Fallback   bool      `json:"fallback,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
}

type ModelList struct {
	Object string         `json:"object"`
	Data   []ModelSummary `json:"data"`
}
