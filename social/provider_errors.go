package social

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError normalizes an upstream OAuth failure. Providers populate
// Provider and Operation on every error; Status, Code, and Description
// carry whatever the token exchange or userinfo response reported.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	detail := e.Description
	if detail == "" {
		detail = e.Code
	}
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}

	if detail == "" {
		return fmt.Sprintf("%s %s failed", e.Provider, e.Operation)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Provider, e.Operation, detail)
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) metadata() map[string]any {
	meta := map[string]any{
		"provider":  e.Provider,
		"operation": e.Operation,
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Code != "" {
		meta["code"] = e.Code
	}
	if e.Description != "" {
		meta["description"] = e.Description
	}
	return meta
}

// wrapProviderError attaches provider failure details to one of the
// package sentinels without mutating the sentinel itself.
func wrapProviderError(base *goerrors.Error, provider, operation string, err error) error {
	if base == nil {
		return err
	}

	meta := map[string]any{
		"provider":  provider,
		"operation": operation,
	}

	var perr *ProviderError
	if errors.As(err, &perr) && perr != nil {
		for k, v := range perr.metadata() {
			meta[k] = v
		}
	} else if err != nil {
		meta["error"] = err.Error()
	}

	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if err != nil {
		clone.Source = err
	}
	clone.WithMetadata(meta)

	return clone
}
