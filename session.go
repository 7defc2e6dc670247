/*
Package salesman – remote API contract.

The record API is consumed through Session and SObject. internal/sforce
provides the REST implementation; tests supply in-memory fakes.
*/
package salesman

import (
	"context"
	"strings"
)

// Session is an authenticated handle on the remote API.
type Session interface {
	SObject(objectName string) SObject
}

// SObject is the remote API of one object type.
type SObject interface {
	Describe(ctx context.Context) (*RawDescribe, error)
	ClearDescribeCache()
	Create(ctx context.Context, record Record) (*SaveResult, error)
	Update(ctx context.Context, record Record) (*SaveResult, error)
	Destroy(ctx context.Context, id string) (*SaveResult, error)
	Find(ctx context.Context, q *RemoteQuery) ([]Record, error)
}

// SaveResult is the remote answer to create, update and destroy.
type SaveResult struct {
	Success bool            `json:"success"`
	ID      string          `json:"id"`
	Errors  []RemoteFailure `json:"errors"`
}

// RemoteFailure is one error entry of a SaveResult.
type RemoteFailure struct {
	StatusCode string   `json:"statusCode"`
	Message    string   `json:"message"`
	Fields     []string `json:"fields,omitempty"`
}

// Err converts an unsuccessful result into a RemoteError.
func (r *SaveResult) Err(op, objectName string) error {
	if r == nil {
		return NewError(op+" on "+objectName+" returned no result", WithCode(ErrRemote))
	}
	if r.Success {
		return nil
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		if e.StatusCode != "" {
			msgs = append(msgs, e.StatusCode+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	msg := strings.Join(msgs, "; ")
	if msg == "" {
		msg = "unknown failure"
	}
	return NewError(op+" on "+objectName+" failed: "+msg, WithCode(ErrRemote),
		WithContext(map[string]any{"errors": r.Errors}))
}

// RemoteQuery is a find request keyed by column paths.
type RemoteQuery struct {
	Select   map[string]any
	Where    map[string]any
	Sort     map[string]int
	Limit    *int
	Skip     int
	Includes []RemoteInclude
}

// RemoteInclude fetches related records through a relationship. Collection
// includes are child sub-queries; the others are parent lookups whose columns
// are read through RelationshipName.
type RemoteInclude struct {
	RelationshipName string
	Collection       bool
	Query            *RemoteQuery
}
