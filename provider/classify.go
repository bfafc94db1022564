package provider

import (
	stderrors "errors"
	"strings"

	"github.com/m4xw311/ccbridge/errors"
)

// authMarkers are the case-insensitive substrings that mark a failure as
// an authentication problem. Classification is purely string-pattern
// based: the agent CLI exposes no structured error taxonomy.
var authMarkers = []string{
	"unauthorized",
	"authentication",
	"api key",
	"not authenticated",
	"login required",
}

// classifyError turns an arbitrary failure from the agent invocation into
// one of the two error kinds of the taxonomy. Already-classified errors
// pass through untouched. A cancelled invocation is not special-cased: it
// surfaces as whatever failure the CLI produced, classified by the same
// message patterns.
func classifyError(err error, prompt string) error {
	if err == nil {
		return nil
	}

	var ae *errors.AuthenticationError
	if stderrors.As(err, &ae) {
		return err
	}
	var ce *errors.CallError
	if stderrors.As(err, &ce) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authMarkers {
		if strings.Contains(msg, marker) {
			return errors.NewAuthenticationError(err)
		}
	}
	return errors.NewCallError(err.Error(), prompt, err)
}
