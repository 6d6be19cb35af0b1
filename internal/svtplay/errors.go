package svtplay

import "errors"

var (
	// ErrBinaryNotFound indicates svtplay-dl is not installed
	ErrBinaryNotFound = errors.New("svtplay-dl not found in PATH")

	// ErrInvalidURL indicates the URL format is invalid
	ErrInvalidURL = errors.New("invalid url format")

	// ErrTokenRequired indicates the content needs a valid, unexpired token
	ErrTokenRequired = errors.New("this content requires a valid token; check that one is set and has not expired")

	// ErrNoVideos indicates the tool found nothing to download at the URL
	ErrNoVideos = errors.New("no videos were found at this url; check the url or refresh your token")

	// ErrDRMProtected indicates the content is DRM protected
	ErrDRMProtected = errors.New("this content is DRM protected and cannot be downloaded")

	// ErrTimeout indicates a probe did not finish in time
	ErrTimeout = errors.New("request timed out")

	// ErrBadOutput indicates the tool printed something that could not be parsed
	ErrBadOutput = errors.New("failed to parse tool output")

	// ErrDownloadFailed indicates the download failed
	ErrDownloadFailed = errors.New("download failed")
)

// DownloadError wraps an error with additional context
type DownloadError struct {
	URL     string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Summary returns the short status text for recognised failures and
// nothing for generic ones.
func (e *DownloadError) Summary() string {
	switch {
	case errors.Is(e.Err, ErrTokenRequired),
		errors.Is(e.Err, ErrNoVideos),
		errors.Is(e.Err, ErrDRMProtected):
		return e.Message
	}
	return ""
}
