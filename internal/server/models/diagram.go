// Package models defines the diagram request types shared by the upload
// path, the processing task, storage, and the registry.
package models

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"regexp"

	"github.com/dmitrijs2005/schemadiagram/internal/common"
)

// KeyLength is the fixed length of a DiagramKey.
const KeyLength = 12

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9]{12}$`)

// DiagramKey scopes every artifact that belongs to one upload.
type DiagramKey string

// NewDiagramKey draws a key from crypto/rand. Rejection sampling keeps the
// alphabet uniform.
func NewDiagramKey() (DiagramKey, error) {
	return newDiagramKey(rand.Reader)
}

func newDiagramKey(r io.Reader) (DiagramKey, error) {
	const limit = 256 - 256%len(keyAlphabet)

	out := make([]byte, 0, KeyLength)
	buf := make([]byte, KeyLength*2)
	for len(out) < KeyLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("generate key: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, keyAlphabet[int(b)%len(keyAlphabet)])
			if len(out) == KeyLength {
				break
			}
		}
	}
	return DiagramKey(out), nil
}

// ParseDiagramKey validates s as a key.
func ParseDiagramKey(s string) (DiagramKey, error) {
	if !keyPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidKey, s)
	}
	return DiagramKey(s), nil
}

func (k DiagramKey) String() string { return string(k) }

func (k DiagramKey) Valid() bool { return keyPattern.MatchString(string(k)) }

func (k *DiagramKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDiagramKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DiagramRequest is the metadata document stored next to the artifacts of a
// key. Error is set only when processing failed.
type DiagramRequest struct {
	Key   DiagramKey `json:"key"`
	Title string     `json:"title,omitempty"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Error string     `json:"error,omitempty"`
}

func (r *DiagramRequest) HasError() bool { return r.Error != "" }

// Fail records err on the request. A nil err leaves it untouched.
func (r *DiagramRequest) Fail(err error) {
	if err != nil {
		r.Error = err.Error()
	}
}

func (r *DiagramRequest) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func (r *DiagramRequest) String() string {
	return fmt.Sprintf("DiagramRequest{key=%s, title=%q, name=%q, email=%q}", r.Key, r.Title, r.Name, r.Email)
}

// DiagramRequestFromJSON decodes a stored metadata document.
func DiagramRequestFromJSON(r io.Reader) (*DiagramRequest, error) {
	var req DiagramRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode diagram request: %w", err)
	}
	return &req, nil
}
