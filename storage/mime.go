package storage

import (
	"chat-relay/domain"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// DetectMessageType sniffs the content to pick the message type of an attachment.
// Anything that is not an image, an audio or a video is a plain file.
func DetectMessageType(data []byte) (domain.MessageType, string) {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return domain.ImageMessage, mtype.String()
		case strings.HasPrefix(m.String(), "audio/"):
			return domain.AudioMessage, mtype.String()
		case strings.HasPrefix(m.String(), "video/"):
			return domain.VideoMessage, mtype.String()
		}
	}
	return domain.FileMessage, mtype.String()
}

// ObjectKey makes a unique, URL safe key out of a client supplied file name.
func ObjectKey(filename string) string {
	base := unsafeChars.ReplaceAllString(path.Base(strings.ReplaceAll(filename, `\`, "/")), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	return uuid.NewString() + "-" + base
}
