package picture

import (
	"errors"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound indicates the user has no picture.
	ErrNotFound = errors.New("picture not found")
	// ErrUnsupportedFormat signals an extension outside the whitelist.
	ErrUnsupportedFormat = errors.New("picture format not allowed")
	// ErrTooLarge signals an upload above the configured size cap.
	ErrTooLarge = errors.New("picture exceeds size limit")
	// ErrInvalidImage indicates the payload could not be decoded.
	ErrInvalidImage = errors.New("picture could not be decoded")
)

// AllowedExtensions lists the accepted file extensions, without dots.
var AllowedExtensions = []string{"jpg", "jpeg", "gif", "png"}

// Picture captures the stored attachment of a user.
type Picture struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	StorageKey  string    `json:"-"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SizeBytes   int64     `json:"sizeBytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Extension returns the lower-cased extension of filename without the dot.
func Extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}

// ExtensionAllowed reports whether filename carries a whitelisted extension.
func ExtensionAllowed(filename string) bool {
	ext := Extension(filename)
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// StoreDir is the storage prefix for a model's mounted attachment,
// e.g. uploads/user/picture/<id>.
func StoreDir(model, mountedAs, id string) string {
	return path.Join("uploads", model, mountedAs, id)
}
