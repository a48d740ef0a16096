package enums

import "strings"

type FileKind string

const (
	FileKindDocument FileKind = "document"
	FileKindVideo    FileKind = "video"
)

func ParseFileKind(raw string) FileKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "video":
		return FileKindVideo
	default:
		return FileKindDocument
	}
}
