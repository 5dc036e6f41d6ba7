// Command imgstore serves a small HTTP API for storing user images.
//
// Features:
// - Upload base64 encoded images with a description
// - Fetch image metadata with a time limited download link, or the image itself
// - List a user's images by upload date with continuation tokens
// - Delete images
//
// Metadata lives in Redis, Badger or DynamoDB; image bytes live in S3 (or any
// S3 compatible service) or on the local filesystem.
//
// Example usage:
//
//	go run . --config config/config.json
//
// Configuration:
//
//	See internal/config for the JSON keys and environment variables.
package main
