package domain

// IndexHealth описывает состояние загруженного индекса
type IndexHealth struct {
	Initialized bool     `json:"initialized"`
	NTotal      int      `json:"ntotal"`
	IDs         int      `json:"ids"`
	Dim         int      `json:"dim"`
	Violations  []string `json:"violations,omitempty"`
}
