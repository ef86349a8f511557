// Package session keeps the device's registered student profile and the
// history of IDs used to register on this device.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"asistencia/internal/kv"
)

const (
	UserKey          = "@asistencia_movil_user"
	RegisteredIDsKey = "@asistencia_movil_registered_ids"
)

// LocalUser is the profile cached on the device.
type LocalUser struct {
	Name      string `json:"name"`
	StudentID string `json:"studentId"`
}

// State is the snapshot handed to observers.
type State struct {
	User         *LocalUser
	IsRegistered bool
	Ready        bool
}

// Manager wraps the profile store. One Manager exists per process.
type Manager struct {
	store  kv.Store
	logger *zap.Logger

	mu        sync.RWMutex
	user      *LocalUser
	ready     bool
	observers map[int]func(State)
	nextID    int
}

// NewManager creates a manager backed by store.
func NewManager(store kv.Store, logger ...*zap.Logger) *Manager {
	l := zap.L().Named("session")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Manager{
		store:     store,
		logger:    l,
		observers: make(map[int]func(State)),
	}
}

// Load reads the cached user. Ready is set afterwards whatever the
// outcome; read and decode failures are logged and treated as absent.
func (m *Manager) Load(ctx context.Context) {
	var user *LocalUser
	raw, ok, err := m.store.Get(ctx, UserKey)
	switch {
	case err != nil:
		m.logger.Error("error loading user data", zap.Error(err))
	case ok:
		var u LocalUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			m.logger.Error("error decoding user data", zap.Error(err))
		} else {
			user = &u
		}
	}

	m.mu.Lock()
	m.user = user
	m.ready = true
	m.mu.Unlock()
	m.notify()
}

// Register stores the profile, then records the ID in the device
// history. A storage error is returned and the in-memory user is left
// unchanged.
func (m *Manager) Register(ctx context.Context, name, studentID string) error {
	u := LocalUser{Name: name, StudentID: studentID}
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, UserKey, string(raw)); err != nil {
		m.logger.Error("error saving user data", zap.Error(err))
		return fmt.Errorf("save user: %w", err)
	}

	ids, err := m.registeredIDs(ctx)
	if err != nil {
		m.logger.Error("error saving user data", zap.Error(err))
		return fmt.Errorf("read registered ids: %w", err)
	}
	if !slices.Contains(ids, studentID) {
		ids = append(ids, studentID)
		rawIDs, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		if err := m.store.Set(ctx, RegisteredIDsKey, string(rawIDs)); err != nil {
			m.logger.Error("error saving user data", zap.Error(err))
			return fmt.Errorf("save registered ids: %w", err)
		}
	}

	m.mu.Lock()
	m.user = &u
	m.mu.Unlock()
	m.logger.Info("user registered", zap.String("student_id", studentID))
	m.notify()
	return nil
}

// IsStudentIDTaken reports whether studentID was already used to
// register on this device. Read errors return false.
func (m *Manager) IsStudentIDTaken(ctx context.Context, studentID string) bool {
	ids, err := m.registeredIDs(ctx)
	if err != nil {
		m.logger.Error("error checking student id", zap.Error(err))
		return false
	}
	return slices.Contains(ids, studentID)
}

// Logout removes the cached user. On failure the in-memory user stays.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Remove(ctx, UserKey); err != nil {
		m.logger.Error("error removing user data", zap.Error(err))
		return fmt.Errorf("remove user: %w", err)
	}
	m.mu.Lock()
	m.user = nil
	m.mu.Unlock()
	m.logger.Info("user logged out")
	m.notify()
	return nil
}

// User returns a copy of the current user.
func (m *Manager) User() (LocalUser, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return LocalUser{}, false
	}
	return *m.user, true
}

func (m *Manager) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// Ready reports whether Load has completed.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// Subscribe registers fn to run after every state change. The returned
// func removes it.
func (m *Manager) Subscribe(fn func(State)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.observers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

func (m *Manager) stateLocked() State {
	s := State{IsRegistered: m.user != nil, Ready: m.ready}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) notify() {
	m.mu.RLock()
	s := m.stateLocked()
	fns := make([]func(State), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (m *Manager) registeredIDs(ctx context.Context) ([]string, error) {
	raw, ok, err := m.store.Get(ctx, RegisteredIDsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode registered ids: %w", err)
	}
	return ids, nil
}
