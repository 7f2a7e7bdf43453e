package dto

// ReconcileRequest controls a reconciliation run. Omitting dry_run repairs drift.
type ReconcileRequest struct {
	DryRun bool `json:"dry_run"`
}
