package linkgraph

import (
	"mime"
	"path"
	"strings"
)

// Acceptable reports whether a Content-Type names crawlable text: any text/*
// type or application/xml.
func Acceptable(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	return strings.HasPrefix(mediaType, "text/") || mediaType == "application/xml"
}

// extensionTypes maps lowercase file extensions to the media type a server
// would most likely send. It is fixed so the crawl frontier does not depend on
// the host's mime.types files.
var extensionTypes = map[string]string{
	".htm":   "text/html",
	".html":  "text/html",
	".shtml": "text/html",
	".php":   "text/html",
	".asp":   "text/html",
	".aspx":  "text/html",
	".jsp":   "text/html",
	".txt":   "text/plain",
	".md":    "text/markdown",
	".csv":   "text/csv",
	".css":   "text/css",
	".js":    "text/javascript",
	".mjs":   "text/javascript",
	".xml":   "text/xml",
	".xhtml": "application/xhtml+xml",
	".rss":   "application/rss+xml",
	".atom":  "application/atom+xml",
	".json":  "application/json",
	".pdf":   "application/pdf",
	".doc":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":   "application/vnd.ms-powerpoint",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".zip":   "application/zip",
	".gz":    "application/gzip",
	".tgz":   "application/gzip",
	".tar":   "application/x-tar",
	".7z":    "application/x-7z-compressed",
	".rar":   "application/vnd.rar",
	".exe":   "application/octet-stream",
	".dmg":   "application/octet-stream",
	".iso":   "application/octet-stream",
	".bin":   "application/octet-stream",
	".wasm":  "application/wasm",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".webp":  "image/webp",
	".avif":  "image/avif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".bmp":   "image/bmp",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".mp3":   "audio/mpeg",
	".wav":   "audio/wav",
	".ogg":   "audio/ogg",
	".flac":  "audio/flac",
	".mp4":   "video/mp4",
	".webm":  "video/webm",
	".mov":   "video/quicktime",
	".avi":   "video/x-msvideo",
	".mkv":   "video/x-matroska",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
}

// ShouldCrawl guesses a URL path's media type from its extension. Paths
// without a known extension are assumed crawlable.
func ShouldCrawl(urlPath string) bool {
	guessed, ok := extensionTypes[strings.ToLower(path.Ext(urlPath))]
	if !ok {
		return true
	}
	return Acceptable(guessed)
}
