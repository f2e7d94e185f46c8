package creditline

import (
	"errors"
	"testing"
)

func TestOperationErrorFormatsSegments(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "bill", "get", ErrCreditNotFound)
	expected := "store.bill.get: credit line not found"
	if wrapped.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrapped.Error())
	}
}

func TestOperationErrorUnwrapsSentinel(test *testing.T) {
	test.Parallel()
	wrapped := WrapError("store", "credit_line", "not_found", ErrCreditNotFound)
	if !errors.Is(wrapped, ErrCreditNotFound) {
		test.Fatalf("expected wrapped error to match sentinel")
	}
	var operationError OperationError
	if !errors.As(wrapped, &operationError) {
		test.Fatalf("expected OperationError")
	}
	if operationError.Operation() != "store" || operationError.Subject() != "credit_line" || operationError.Code() != "not_found" {
		test.Fatalf("unexpected segments: %s %s %s", operationError.Operation(), operationError.Subject(), operationError.Code())
	}
}

func TestWrapErrorPassesNilThrough(test *testing.T) {
	test.Parallel()
	if WrapError("store", "bill", "get", nil) != nil {
		test.Fatalf("expected nil for nil source error")
	}
}
