package errors

import "fmt"

func InvalidBodyErr(err error) error {
	return E(Invalid, "invalid request body", err)
}

func EmptyParamErr(field string) error {
	ve := ValidationErrs()
	ve.Add(field, "cannot be empty")
	return ve.Err()
}

// StorageErr wraps a record store failure for the named operation
func StorageErr(op string, err error) error {
	return E(Storage, fmt.Sprintf("store %s failed", op), err)
}

// QueueErr wraps a job queue failure for the named operation
func QueueErr(op string, err error) error {
	return E(Queue, fmt.Sprintf("queue %s failed", op), err)
}

// AttemptsExhaustedErr reports a job that was dead-lettered after its final attempt
func AttemptsExhaustedErr(jobID string, attempts int, err error) error {
	return E(Exhausted, fmt.Sprintf("job %s exhausted %d attempts", jobID, attempts), err)
}

func NotFoundErr(what, id string) error {
	return E(NotFound, fmt.Sprintf("%s %s not found", what, id), nil)
}
