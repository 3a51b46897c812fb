// Package errs holds the error kinds shared by the ingestion boundary, the
// stores and the pipeline stages. Causes are classified by joining them with
// one of the sentinels below and tested with errors.Is.
package errs

import "errors"

var (
	ErrAuthentication    = errors.New("authentication failed")
	ErrNotFound          = errors.New("not found")
	ErrTranscription     = errors.New("transcription failed")
	ErrSummarization     = errors.New("summarization failed")
	ErrConfiguration     = errors.New("missing configuration")
	ErrPublish           = errors.New("publish failed")
	ErrInvalidTransition = errors.New("invalid stage transition")
	ErrPassInProgress    = errors.New("pipeline pass already in progress")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrAuthentication, "authentication"},
	{ErrNotFound, "not_found"},
	{ErrConfiguration, "configuration"},
	{ErrTranscription, "transcription"},
	{ErrSummarization, "summarization"},
	{ErrPublish, "publish"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrPassInProgress, "pass_in_progress"},
}

// Kind names the first matching error kind, for log fields.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "unknown"
}
