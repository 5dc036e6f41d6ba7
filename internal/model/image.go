package model

import "fmt"

// Image is the metadata record kept for every uploaded image.
type Image struct {
	ID          string `json:"image_id" dynamodbav:"image_id"`
	Filename    string `json:"filename" dynamodbav:"filename"`
	ContentType string `json:"content_type" dynamodbav:"content_type"`
	Size        int64  `json:"size" dynamodbav:"size"`
	UserID      string `json:"user_id" dynamodbav:"user_id"`
	StorageKey  string `json:"storage_key" dynamodbav:"storage_key"`
	UploadDate  string `json:"upload_date" dynamodbav:"upload_date"`
	Description string `json:"description,omitempty" dynamodbav:"description,omitempty"`
}

// StorageKey derives the object storage path of an image.
func StorageKey(imageID, filename string) string {
	return fmt.Sprintf("images/%s/%s", imageID, filename)
}
