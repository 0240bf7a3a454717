package domain

import "time"

type IndexOperation string

const (
	OperationBuild   IndexOperation = "build"
	OperationRebuild IndexOperation = "rebuild"
	OperationUpdate  IndexOperation = "update"
	OperationRemove  IndexOperation = "remove"
	OperationRepair  IndexOperation = "repair"
)

// IndexRun — запись журнала операций над индексом
type IndexRun struct {
	ID         string // uuid
	Operation  IndexOperation
	Device     Device
	Indexed    int
	Skipped    int
	Failed     int
	IndexSize  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// IndexEvent публикуется после изменения индекса, чтобы реплики перечитали файлы.
type IndexEvent struct {
	ID         string         `json:"id"`
	Operation  IndexOperation `json:"operation"`
	ProductIDs []int64        `json:"product_ids,omitempty"`
	IndexSize  int            `json:"index_size"`
	Snapshot   string         `json:"snapshot,omitempty"`
	Origin     string         `json:"origin"`
	CreatedAt  time.Time      `json:"created_at"`
}
