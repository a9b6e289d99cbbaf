package audit

import "context"

type runKey struct{}

type runInfo struct {
	runID       string
	pipelineID  string
	commitSHA   string
	environment string
	namespace   string
}

// WithRun stores run metadata on ctx so events logged under it are tagged
// without every caller repeating the fields.
func WithRun(ctx context.Context, runID, pipelineID, commitSHA, environment, namespace string) context.Context {
	return context.WithValue(ctx, runKey{}, runInfo{
		runID:       runID,
		pipelineID:  pipelineID,
		commitSHA:   commitSHA,
		environment: environment,
		namespace:   namespace,
	})
}

// RunID extracts the run id from context
func RunID(ctx context.Context) string {
	if rc, ok := runFromContext(ctx); ok {
		return rc.runID
	}
	return ""
}

func runFromContext(ctx context.Context) (runInfo, bool) {
	if ctx == nil {
		return runInfo{}, false
	}
	rc, ok := ctx.Value(runKey{}).(runInfo)
	return rc, ok
}
