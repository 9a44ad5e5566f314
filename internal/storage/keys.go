package storage

import "fmt"

// Object key layout. These paths are a compatibility contract with existing
// deployments and must not change.

// UploadKey returns the key of an original upload.
func UploadKey(jobID, fileName string) string {
	return fmt.Sprintf("uploads/%s/%s", jobID, fileName)
}

// ConvertedKey returns the key of the normalized display copy.
func ConvertedKey(jobID string) string {
	return fmt.Sprintf("converted/%s/converted.jpg", jobID)
}
