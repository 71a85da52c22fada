package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
)

// reportedError is an error the command has already written to stderr.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already written out by the command
// that returned it.
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// writeJSONError writes err to stderr as a JSON object, for commands whose
// output was requested as JSON.
func writeJSONError(cmd *cobra.Command, err error) error {
	if err == nil {
		return nil
	}
	data, merr := amerrors.FormatJSON(err)
	if merr != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), string(data))
	return &reportedError{err: err}
}
