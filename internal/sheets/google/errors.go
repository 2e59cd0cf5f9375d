package google

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// IsPermanent reports whether a read error will repeat on retry: a missing
// spreadsheet id, or an API response saying the spreadsheet or range is
// invalid, unknown or not shared with the service account.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrMissingSpreadsheetID) || errors.Is(err, ErrMissingCredentials) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound:
			return true
		}
	}
	return false
}
