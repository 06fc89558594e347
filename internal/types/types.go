package types

// GraphRebuildParams drives a full re-projection of the relational store into
// the graph. Running totals are carried across ContinueAsNew.
type GraphRebuildParams struct {
	AfterID     int64 `json:"after_id"`      // resume after this item id
	PageSize    int   `json:"page_size"`     // ids listed per page; 0 means 500
	Parallel    int   `json:"parallel"`      // concurrent projection workers; 0 means 4
	PagesPerRun int   `json:"pages_per_run"` // pages before continuing as new; 0 means 50

	Pages     int `json:"pages"`
	Projected int `json:"projected"`
	Failed    int `json:"failed"`
}

type GraphRebuildResult struct {
	Pages     int   `json:"pages"`
	Projected int   `json:"projected"`
	Failed    int   `json:"failed"`
	LastID    int64 `json:"last_id"`
	Replayed  int   `json:"replayed"` // outbox entries drained at the end
}

type ListItemIDsParams struct {
	AfterID int64
	Limit   int
}

type ProjectItemsParams struct {
	IDs      []int64
	Parallel int
}

type ProjectItemsResult struct {
	Projected int
	Failed    int
}

type ReplayOutboxParams struct {
	Limit int
}

// ImportItemsParams names a file to bulk import.
type ImportItemsParams struct {
	FileURI string `json:"file_uri"` // file:// or s3:// path to a json/ndjson/csv/tsv/xlsx/xls file
}

type ImportItemsResult struct {
	Records  int `json:"records"`  // rows parsed from the file
	Imported int `json:"imported"` // new items inserted
	Skipped  int `json:"skipped"`  // rows whose URL was already known or empty
	Replayed int `json:"replayed"`
}
