package services

import (
	"path/filepath"
	"strings"
)

var mimeByExtension = map[string]string{
	".mp4":  "video/mp4",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".tiff": "image/tiff",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
}

// DetectMimeType maps the filename extension to a MIME type, falling back
// to application/octet-stream.
func DetectMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

var etaPriorityMultiplier = map[int]float64{
	1: 0.5, 2: 0.7, 3: 0.8, 4: 0.9, 5: 1.0,
	6: 1.1, 7: 1.2, 8: 1.5, 9: 2.0, 10: 3.0,
}

// ProcessingETA estimates processing seconds from size and priority.
func ProcessingETA(fileSize int64, priority int) int {
	baseTime := float64(fileSize) / (1024 * 1024)
	mult, ok := etaPriorityMultiplier[priority]
	if !ok {
		mult = 1.0
	}
	return int(baseTime * mult)
}
