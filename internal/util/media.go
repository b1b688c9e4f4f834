package util

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const InvalidMediaMessage = "Please select an audio or video file."

// sniffLimit matches mimetype's default read limit.
const sniffLimit = 3072

// DetectMediaType checks that an upload is audio or video. The declared
// content type is trusted unless it is empty or application/octet-stream,
// in which case the leading bytes are sniffed. The returned reader yields
// the full content, including anything consumed while sniffing.
func DetectMediaType(declared string, content io.Reader) (string, io.Reader, error) {
	mediaType := ""
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			mediaType = strings.ToLower(mt)
		}
	}

	if mediaType == "" || mediaType == "application/octet-stream" {
		head := make([]byte, sniffLimit)
		n, err := io.ReadFull(content, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return "", nil, err
		}
		head = head[:n]
		mediaType = mimetype.Detect(head).String()
		if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
			mediaType = mt
		}
		content = io.MultiReader(bytes.NewReader(head), content)
		declared = mediaType
	}

	if !IsMedia(mediaType) {
		return mediaType, nil, NewFormError(InvalidMediaMessage, map[string]string{
			"file": "must be an audio or video file, got " + mediaType,
		})
	}
	return declared, content, nil
}

func IsMedia(mediaType string) bool {
	top, _, _ := strings.Cut(mediaType, "/")
	return top == "audio" || top == "video"
}
