package media

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gofrs/uuid/v5"
)

const uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

// issuedName matches names produced by Reconcile: {owner}_{token}.{ext}.
var issuedName = regexp.MustCompile(`^` + uuidPattern + `_` + uuidPattern + `\.(jpg|png|gif|webp)$`)

// Authorize decides whether callerID may read filename. Ownership is encoded
// in the name itself, so no lookup happens here; existence is checked after.
func Authorize(callerID uuid.UUID, filename string) error {
	if !issuedName.MatchString(filename) {
		return ErrForbidden
	}
	if !strings.HasPrefix(filename, callerID.String()+"_") {
		return ErrForbidden
	}
	return nil
}

var extMIME = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// ContentType returns the MIME type for an issued name, derived from the
// extension Reconcile assigned after sniffing.
func ContentType(filename string) string {
	if t, ok := extMIME[filepath.Ext(filename)]; ok {
		return t
	}
	return "application/octet-stream"
}
