/*
Package sforce – Salesforce REST client.

Login performs the OAuth2 username-password flow and returns a Session
implementing salesman.Session over the REST API: describe (cached per
object until ClearDescribeCache), create, update, destroy and SOQL queries
that follow nextRecordsUrl until the result is complete.
*/
package sforce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	salesman "github.com/cloudxsgmbh/salesman-go"
	"github.com/cloudxsgmbh/salesman-go/internal/soql"
	"golang.org/x/oauth2"
)

// Config holds the credentials of the password flow.
type Config struct {
	LoginURL      string
	ClientID      string
	ClientSecret  string
	Username      string
	Password      string
	SecurityToken string
	APIVersion    string
	// HTTPClient is the base client for every request; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// FromConnectionConfig converts the package connection settings.
func FromConnectionConfig(c salesman.ConnectionConfig) Config {
	c = c.WithDefaults()
	return Config{
		LoginURL:      c.LoginURL,
		ClientID:      c.ClientID,
		ClientSecret:  c.ClientSecret,
		Username:      c.Username,
		Password:      c.Password,
		SecurityToken: c.SecurityToken,
		APIVersion:    c.APIVersion,
	}
}

// LoginFunc adapts Login for salesman.NewConnection.
func LoginFunc(cfg Config) salesman.LoginFunc {
	return func(ctx context.Context) (salesman.Session, error) {
		return Login(ctx, cfg)
	}
}

// Session is an authenticated REST session.
type Session struct {
	client      *http.Client
	instanceURL string
	version     string

	mu        sync.Mutex
	describes map[string]*salesman.RawDescribe
}

// Login exchanges the credentials for an access token.
func Login(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.LoginURL == "" {
		cfg.LoginURL = salesman.DefaultLoginURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = salesman.DefaultAPIVersion
	}
	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  strings.TrimRight(cfg.LoginURL, "/") + "/services/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	tok, err := oc.PasswordCredentialsToken(ctx, cfg.Username, cfg.Password+cfg.SecurityToken)
	if err != nil {
		return nil, fmt.Errorf("sforce: login as %s: %w", cfg.Username, err)
	}
	instanceURL, _ := tok.Extra("instance_url").(string)
	if instanceURL == "" {
		return nil, fmt.Errorf("sforce: login response has no instance_url")
	}
	return &Session{
		client:      oc.Client(context.WithoutCancel(ctx), tok),
		instanceURL: strings.TrimRight(instanceURL, "/"),
		version:     cfg.APIVersion,
		describes:   map[string]*salesman.RawDescribe{},
	}, nil
}

// InstanceURL is the API host the session talks to.
func (s *Session) InstanceURL() string { return s.instanceURL }

// SObject implements salesman.Session.
func (s *Session) SObject(objectName string) salesman.SObject {
	return &sobject{s: s, name: objectName}
}

func (s *Session) dataURL(path string) string {
	return s.instanceURL + "/services/data/" + s.version + path
}

// APIError is a non-success REST response.
type APIError struct {
	Status int
	Errors []salesman.RemoteFailure
}

func (e *APIError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		msgs = append(msgs, f.StatusCode+": "+f.Message)
	}
	if len(msgs) == 0 {
		return fmt.Sprintf("sforce: HTTP %d", e.Status)
	}
	return fmt.Sprintf("sforce: HTTP %d: %s", e.Status, strings.Join(msgs, "; "))
}

// restFailure is the REST error shape.
type restFailure struct {
	ErrorCode string   `json:"errorCode"`
	Message   string   `json:"message"`
	Fields    []string `json:"fields"`
}

// do sends one request and decodes a JSON answer into out (when non-nil).
func (s *Session) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("sforce: encode body: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return fmt.Errorf("sforce: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sforce: %s %s: %w", method, rawURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("sforce: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var failures []restFailure
		if json.Unmarshal(data, &failures) == nil {
			for _, f := range failures {
				apiErr.Errors = append(apiErr.Errors, salesman.RemoteFailure{
					StatusCode: f.ErrorCode, Message: f.Message, Fields: f.Fields,
				})
			}
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("sforce: decode response: %w", err)
	}
	return nil
}

type sobject struct {
	s    *Session
	name string
}

func (o *sobject) Describe(ctx context.Context) (*salesman.RawDescribe, error) {
	o.s.mu.Lock()
	cached, ok := o.s.describes[o.name]
	o.s.mu.Unlock()
	if ok {
		return cached, nil
	}

	var raw salesman.RawDescribe
	if err := o.s.do(ctx, http.MethodGet, o.s.dataURL("/sobjects/"+o.name+"/describe"), nil, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" {
		raw.Name = o.name
	}
	o.s.mu.Lock()
	o.s.describes[o.name] = &raw
	o.s.mu.Unlock()
	return &raw, nil
}

func (o *sobject) ClearDescribeCache() {
	o.s.mu.Lock()
	delete(o.s.describes, o.name)
	o.s.mu.Unlock()
}

func (o *sobject) Create(ctx context.Context, record salesman.Record) (*salesman.SaveResult, error) {
	var res salesman.SaveResult
	err := o.s.do(ctx, http.MethodPost, o.s.dataURL("/sobjects/"+o.name+"/"), record, &res)
	return saveResult(&res, "", err)
}

func (o *sobject) Update(ctx context.Context, record salesman.Record) (*salesman.SaveResult, error) {
	id, _ := record[salesman.IDColumn].(string)
	if id == "" {
		return nil, fmt.Errorf("sforce: update of %s without %s", o.name, salesman.IDColumn)
	}
	body := make(map[string]any, len(record))
	for k, v := range record {
		if k != salesman.IDColumn {
			body[k] = v
		}
	}
	err := o.s.do(ctx, http.MethodPatch, o.s.dataURL("/sobjects/"+o.name+"/"+url.PathEscape(id)), body, nil)
	return saveResult(&salesman.SaveResult{Success: true, ID: id}, id, err)
}

func (o *sobject) Destroy(ctx context.Context, id string) (*salesman.SaveResult, error) {
	err := o.s.do(ctx, http.MethodDelete, o.s.dataURL("/sobjects/"+o.name+"/"+url.PathEscape(id)), nil, nil)
	return saveResult(&salesman.SaveResult{Success: true, ID: id}, id, err)
}

// saveResult turns REST validation failures into an unsuccessful SaveResult
// and passes every other error through.
func saveResult(res *salesman.SaveResult, id string, err error) (*salesman.SaveResult, error) {
	if err == nil {
		return res, nil
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusBadRequest && len(apiErr.Errors) > 0 {
		return &salesman.SaveResult{Success: false, ID: id, Errors: apiErr.Errors}, nil
	}
	return nil, err
}

type queryPage struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
	Records        []salesman.Record `json:"records"`
}

func (o *sobject) Find(ctx context.Context, q *salesman.RemoteQuery) ([]salesman.Record, error) {
	stmt, err := soql.Build(o.name, q)
	if err != nil {
		return nil, err
	}
	next := o.s.dataURL("/query?q=" + url.QueryEscape(stmt))
	var rows []salesman.Record
	for next != "" {
		var page queryPage
		if err := o.s.do(ctx, http.MethodGet, next, nil, &page); err != nil {
			return nil, err
		}
		rows = append(rows, page.Records...)
		next = ""
		if !page.Done && page.NextRecordsURL != "" {
			next = o.s.instanceURL + page.NextRecordsURL
		}
	}
	return rows, nil
}
