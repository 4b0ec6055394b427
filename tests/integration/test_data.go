package integration

import (
	"fmt"
	"time"
)

// TestUser generates unique test user credentials using a timestamp.
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "TestPassword123!"
	return
}

// TestPersonName generates a unique person name for dispatch tests.
func TestPersonName(suffix string) string {
	return fmt.Sprintf("person-%d-%s", time.Now().UnixNano(), suffix)
}
