package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, to string, jobID string, reference string, stage string, errorMsg string) error
}
