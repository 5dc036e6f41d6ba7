package images

import "fmt"

// InputError is a client-correctable problem with a request.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// NotFoundError reports a missing record or a missing object. The two cases
// carry different messages so a record whose object has gone is visible.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func badInput(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

func imageNotFound(imageID string) error {
	return &NotFoundError{Message: "Image not found: " + imageID}
}

var errObjectMissing = &NotFoundError{Message: "Image file not found in storage"}
