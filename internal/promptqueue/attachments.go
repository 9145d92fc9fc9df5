package promptqueue

import (
	"path/filepath"
	"strings"

	"dronehub/internal/apierr"
)

const (
	maxAttachmentBytes      = 6 * 1024 * 1024
	maxTotalAttachmentBytes = 20 * 1024 * 1024
	maxAttachmentCount      = 8
)

var allowedExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".bmp": true, ".svg": true, ".avif": true, ".tiff": true,
}

// validateAttachments applies the spec §4.5 attachment policy: images only
// (by mime or extension), per-image and aggregate size caps, and a max
// count. The taxonomy has no dedicated "bad request" code, so invalid_name
// -- the only code mapped to HTTP 400 -- doubles as the generic validation
// failure.
func validateAttachments(atts []Attachment) error {
	if len(atts) > maxAttachmentCount {
		return apierr.New(apierr.CodeInvalidName,
			"at most 8 attachments are allowed per prompt")
	}

	var total int
	for _, a := range atts {
		if !isImage(a) {
			return apierr.New(apierr.CodeInvalidName,
				"attachment "+a.Filename+" is not a supported image type")
		}
		if len(a.Data) > maxAttachmentBytes {
			return apierr.New(apierr.CodeInvalidName,
				"attachment "+a.Filename+" exceeds the 6 MiB per-image limit")
		}
		total += len(a.Data)
	}
	if total > maxTotalAttachmentBytes {
		return apierr.New(apierr.CodeInvalidName,
			"attachments exceed the 20 MiB total limit")
	}
	return nil
}

func isImage(a Attachment) bool {
	if strings.HasPrefix(a.MimeType, "image/") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(a.Filename))
	return allowedExtensions[ext]
}
