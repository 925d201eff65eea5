package models

// Requests for admin HTTP endpoints. Defined in domain for consistency and reuse.

type PredictionRequest struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required"`
}

type PredictionsRequest struct {
	Symbols string `query:"symbols" json:"symbols" validate:"required"`
}

type SyncRecordsRequest struct {
	State string `query:"state" json:"state" validate:"omitempty,oneof=local_only synced local_dirty remote_dirty conflicted"`
}

type ResolveConflictRequest struct {
	Symbol     string `json:"symbol" validate:"required"`
	Resolution string `json:"resolution" validate:"required,oneof=kept-local kept-remote"`
}

type RunCycleRequest struct {
	SkipFetch bool `json:"skip_fetch" default:"false"`
}
