package storage

import (
	"os"
	"strconv"

	"github.com/google/uuid"
)

// NewOrigin returns a unique identifier for one connection to a storage
// area (hostname+pid+random).
func NewOrigin() string {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}

	return host + "-" + strconv.Itoa(os.Getpid()) + "-" + uuid.NewString()[:8]
}
