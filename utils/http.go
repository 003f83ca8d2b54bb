// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// NewHTTPClient is the client outbound service calls share.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
