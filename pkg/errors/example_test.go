package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/econdash/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeNotFound, "column not found").
		WithDetail("column", "data_referencia")

	fmt.Println(err.Error())
	fmt.Println(err.Details["column"])

	// Output:
	// not_found: column not found
	// data_referencia
}

// ExampleWrap shows how an underlying failure keeps its identity.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeSerialization, "failed to decode payload")

	fmt.Println(errors.IsType(err, errors.ErrorTypeSerialization))
	fmt.Println(errors.Is(err, io.ErrUnexpectedEOF))
	fmt.Println(err)

	// Output:
	// true
	// true
	// serialization: failed to decode payload: unexpected EOF
}
