// Package pending tracks interactive prompts (questions and permission
// requests) awaiting a user reaction, keyed by chat and topic.
package pending

import (
	"sync"

	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
)

// Key addresses one conversation surface.
type Key struct {
	ChatID   int64
	ThreadID int
}

// Question is an outstanding multi-question prompt. One Telegram message
// exists per question; MessageIDs is parallel to Questions.
type Question struct {
	RequestID  string
	SessionID  string
	Key        Key
	Questions  []opencode.Question
	MessageIDs []int
	Answers    [][]string

	// AwaitingFreetextIdx is the question whose "Other" was clicked and
	// which now expects a typed answer. -1 when none.
	AwaitingFreetextIdx int
}

// Answered counts questions that already have an answer.
func (q *Question) Answered() int {
	n := 0
	for _, a := range q.Answers {
		if len(a) > 0 {
			n++
		}
	}
	return n
}

// Complete reports whether every question has an answer.
func (q *Question) Complete() bool {
	return q.Answered() == len(q.Questions)
}

// Permission is an outstanding approval request.
type Permission struct {
	ID        string
	SessionID string
	Key       Key
	MessageID int
	Title     string
}

// Registry holds at most one Question and one Permission per key. Writers
// race (event consumer opens, command router drains), so access is
// mutex-guarded.
type Registry struct {
	mu          sync.Mutex
	questions   map[Key]*Question
	permissions map[Key]*Permission
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		questions:   make(map[Key]*Question),
		permissions: make(map[Key]*Permission),
	}
}

// PutQuestion installs q, returning the displaced question if one was
// already open on the key.
func (r *Registry) PutQuestion(q *Question) (displaced *Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	displaced = r.questions[q.Key]
	r.questions[q.Key] = q
	return displaced
}

// Question returns the open question for key, if any.
func (r *Registry) Question(key Key) (*Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[key]
	return q, ok
}

// ClearQuestion removes and returns the open question for key.
func (r *Registry) ClearQuestion(key Key) (*Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[key]
	if ok {
		delete(r.questions, key)
	}
	return q, ok
}

// PutPermission installs p, returning the displaced permission if one was
// already open on the key.
func (r *Registry) PutPermission(p *Permission) (displaced *Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	displaced = r.permissions[p.Key]
	r.permissions[p.Key] = p
	return displaced
}

// Permission returns the open permission for key, if any.
func (r *Registry) Permission(key Key) (*Permission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[key]
	return p, ok
}

// ClearPermission removes and returns the open permission for key.
func (r *Registry) ClearPermission(key Key) (*Permission, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.permissions[key]
	if ok {
		delete(r.permissions, key)
	}
	return p, ok
}

// Drain removes and returns everything open on key, used when an
// unrelated message cancels outstanding interactions.
func (r *Registry) Drain(key Key) (*Question, *Permission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := r.questions[key]
	p := r.permissions[key]
	delete(r.questions, key)
	delete(r.permissions, key)
	return q, p
}
